/*
Copyright 2024 Sibabalw Payments Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package escrow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sibabalw/payments-app-sub003/config"
	redlock "github.com/sibabalw/payments-app-sub003/internal/lock"
	"github.com/sibabalw/payments-app-sub003/model"
)

var settlementTracer = otel.Tracer("payments.settlement")

// CreateSettlementWindow opens a new window.
func (l *Engine) CreateSettlementWindow(ctx context.Context, window *model.SettlementWindow) (*model.SettlementWindow, error) {
	return l.datasource.CreateSettlementWindow(ctx, window)
}

// AssignJobToWindow attaches a pending job to a window.
func (l *Engine) AssignJobToWindow(ctx context.Context, jobID, windowID string) error {
	job, err := l.datasource.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	return l.datasource.AssignJobToWindow(ctx, jobID, windowID, job.Version)
}

// ProcessWindow drives every job in a window through execution with bounded
// parallelism and flips the window to processed. It is a resumable batch
// driver: a processed window short-circuits, and jobs already terminal are
// skipped rather than re-executed, so invoking it twice performs no
// additional fund movement.
func (l *Engine) ProcessWindow(ctx context.Context, windowID string) (*RunSummary, error) {
	ctx, span := settlementTracer.Start(ctx, "Processing settlement window",
		trace.WithAttributes(attribute.String("window.id", windowID)))
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	locker := redlock.NewLocker(l.redis, fmt.Sprintf("window:%s", windowID), model.GenerateUUIDWithSuffix("loc"))
	if err := locker.Lock(ctx, time.Duration(cfg.Engine.LockTTLSec)*time.Second); err != nil {
		return nil, err
	}
	defer func() {
		if err := locker.Unlock(context.Background()); err != nil {
			logrus.Errorf("failed to release lock for window %s: %v", windowID, err)
		}
	}()

	window, err := l.datasource.GetSettlementWindow(ctx, windowID)
	if err != nil {
		return nil, err
	}
	if window.Status == model.WindowStatusProcessed {
		logrus.Infof("window %s already processed, nothing to do", windowID)
		return &RunSummary{}, nil
	}

	if window.Status == model.WindowStatusOpen {
		if err := l.datasource.UpdateWindowStatus(ctx, windowID, model.WindowStatusProcessing, window.TransactionCount, window.TotalAmountMinorUnits, nil); err != nil {
			return nil, err
		}
	}

	jobs, err := l.datasource.GetJobsForWindow(ctx, windowID)
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{}
	var mu sync.Mutex
	sem := make(chan struct{}, cfg.Engine.MaxWorkers)
	var wg sync.WaitGroup

	for _, job := range jobs {
		if job.Status == model.JobStatusSucceeded {
			summary.Skipped++
			continue
		}
		if job.Status == model.JobStatusFailed {
			// Failed jobs belong to the recovery pass, not settlement.
			summary.Skipped++
			continue
		}

		summary.Processed++
		sem <- struct{}{}
		wg.Add(1)
		go func(jobID string) {
			defer wg.Done()
			defer func() { <-sem }()
			err := l.ExecuteJob(ctx, jobID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logrus.Errorf("window %s: job %s failed: %v", windowID, jobID, err)
				summary.Failed++
				return
			}
			summary.Succeeded++
		}(job.JobID)
	}
	wg.Wait()

	// Totals are recomputed from the final job states so a resumed run
	// overwrites partial figures from an interrupted one.
	finalJobs, err := l.datasource.GetJobsForWindow(ctx, windowID)
	if err != nil {
		return summary, err
	}
	var transactionCount int
	var totalAmount int64
	for _, job := range finalJobs {
		if job.Status == model.JobStatusSucceeded {
			transactionCount++
			totalAmount += job.AmountMinorUnits
		}
	}

	processedAt := l.clock()
	if err := l.datasource.UpdateWindowStatus(ctx, windowID, model.WindowStatusProcessed, transactionCount, totalAmount, &processedAt); err != nil {
		return summary, err
	}
	logrus.Infof("window %s processed: %d transactions, %d minor units", windowID, transactionCount, totalAmount)
	return summary, nil
}
