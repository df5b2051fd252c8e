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
	"github.com/sibabalw/payments-app-sub003/internal/apierror"
	"github.com/sibabalw/payments-app-sub003/model"
)

var recoveryTracer = otel.Tracer("payments.recovery")

// RecoveryProcessor is the long-running background poller that periodically
// sweeps stuck and failed jobs back into circulation.
type RecoveryProcessor struct {
	engine         *Engine
	batchSize      int
	maxWorkers     int
	pollInterval   time.Duration
	stuckThreshold time.Duration
	stopCh         chan struct{}
	wg             sync.WaitGroup
	running        bool
	mu             sync.Mutex
}

func NewRecoveryProcessor(engine *Engine) *RecoveryProcessor {
	batchSize := 100
	maxWorkers := 10
	pollInterval := 30 * time.Second
	stuckThreshold := time.Hour

	cfg, err := config.Fetch()
	if err == nil {
		batchSize = cfg.Engine.RecoveryBatchSize
		maxWorkers = cfg.Engine.MaxWorkers
		pollInterval = time.Duration(cfg.Engine.RecoveryPollIntervalSec) * time.Second
		stuckThreshold = time.Duration(cfg.Engine.StuckJobThresholdSec) * time.Second
	}

	return &RecoveryProcessor{
		engine:         engine,
		batchSize:      batchSize,
		maxWorkers:     maxWorkers,
		pollInterval:   pollInterval,
		stuckThreshold: stuckThreshold,
		stopCh:         make(chan struct{}),
	}
}

func (p *RecoveryProcessor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()

	logrus.Info("Job recovery processor started")
}

func (p *RecoveryProcessor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	logrus.Info("Job recovery processor stopped")
}

func (p *RecoveryProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *RecoveryProcessor) run(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Job recovery processor context cancelled")
			return
		case <-p.stopCh:
			logrus.Info("Job recovery processor stop signal received")
			return
		case <-ticker.C:
			p.processBatch(ctx)
		}
	}
}

func (p *RecoveryProcessor) processBatch(ctx context.Context) {
	if summary, err := p.engine.RecoverStuckJobs(ctx, "", p.batchSize); err != nil {
		logrus.Errorf("stuck job sweep failed: %v", err)
	} else if summary.Processed > 0 {
		logrus.Infof("stuck job sweep: %+v", summary)
	}
	if summary, err := p.engine.RetryFailedJobs(ctx, "", p.batchSize); err != nil {
		logrus.Errorf("failed job sweep failed: %v", err)
	} else if summary.Processed > 0 {
		logrus.Infof("failed job sweep: %+v", summary)
	}
}

// RecoverStuckJobs finds jobs sitting in processing beyond the configured
// threshold and resets them to pending, or dead-letters them when the retry
// budget is spent. The limit caps how many jobs one invocation touches.
func (l *Engine) RecoverStuckJobs(ctx context.Context, jobType string, limit int) (*RunSummary, error) {
	ctx, span := recoveryTracer.Start(ctx, "Recovering stuck jobs",
		trace.WithAttributes(attribute.String("job.type", jobType)))
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	threshold := time.Duration(cfg.Engine.StuckJobThresholdSec) * time.Second
	if limit <= 0 {
		limit = cfg.Engine.RecoveryBatchSize
	}

	stuck, err := l.datasource.GetStuckJobs(ctx, jobType, threshold, limit)
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{}
	for _, job := range stuck {
		summary.Processed++
		if job.RetryCount >= cfg.Queue.MaxRetryAttempts {
			reason := fmt.Sprintf("stuck in processing with retry budget exhausted (%d attempts)", job.RetryCount)
			if err := l.datasource.MarkJobPermanentlyFailed(ctx, job.JobID, reason, l.clock(), job.Version); err != nil {
				logrus.Errorf("failed to dead-letter stuck job %s: %v", job.JobID, err)
				summary.Skipped++
				continue
			}
			summary.Failed++
			continue
		}

		// A stuck job is still in processing; move it to failed first so the
		// transition table permits the reset back to pending.
		if err := l.UpdateJobStatus(ctx, job, model.JobStatusFailed, "recovered from stuck processing"); err != nil {
			if apierror.Retryable(err) {
				// Another worker got there first; it is no longer stuck.
				summary.Skipped++
				continue
			}
			logrus.Errorf("failed to fail stuck job %s: %v", job.JobID, err)
			summary.Skipped++
			continue
		}
		if err := l.datasource.ResetJobForRetry(ctx, job.JobID, job.Version); err != nil {
			logrus.Errorf("failed to reset stuck job %s: %v", job.JobID, err)
			summary.Skipped++
			continue
		}
		if l.queue != nil {
			job.Status = model.JobStatusPending
			if err := l.queue.Dispatch(ctx, job); err != nil {
				logrus.Errorf("failed to re-dispatch recovered job %s: %v", job.JobID, err)
			}
		}
		summary.Succeeded++
	}
	return summary, nil
}

// RetryFailedJobs re-enqueues failed jobs still inside the retry budget and
// dead-letters those over it. Dead-lettered rows never reach this query
// again.
func (l *Engine) RetryFailedJobs(ctx context.Context, jobType string, limit int) (*RunSummary, error) {
	ctx, span := recoveryTracer.Start(ctx, "Retrying failed jobs",
		trace.WithAttributes(attribute.String("job.type", jobType)))
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = cfg.Engine.RecoveryBatchSize
	}

	failed, err := l.datasource.GetRetryableFailedJobs(ctx, jobType, limit)
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{}
	for _, job := range failed {
		summary.Processed++
		if job.RetryCount >= cfg.Queue.MaxRetryAttempts {
			reason := fmt.Sprintf("exceeded max retry attempts (%d)", cfg.Queue.MaxRetryAttempts)
			if err := l.datasource.MarkJobPermanentlyFailed(ctx, job.JobID, reason, l.clock(), job.Version); err != nil {
				logrus.Errorf("failed to dead-letter job %s: %v", job.JobID, err)
				summary.Skipped++
				continue
			}
			summary.Failed++
			continue
		}

		if err := l.datasource.ResetJobForRetry(ctx, job.JobID, job.Version); err != nil {
			logrus.Errorf("failed to reset job %s for retry: %v", job.JobID, err)
			summary.Skipped++
			continue
		}
		if l.queue != nil {
			job.Status = model.JobStatusPending
			if err := l.queue.Dispatch(ctx, job); err != nil {
				logrus.Errorf("failed to re-dispatch job %s: %v", job.JobID, err)
			}
		}
		summary.Succeeded++
	}
	return summary, nil
}
