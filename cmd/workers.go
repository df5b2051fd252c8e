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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	escrow "github.com/sibabalw/payments-app-sub003"
	"github.com/sibabalw/payments-app-sub003/config"
	"github.com/sibabalw/payments-app-sub003/internal/apierror"
	redis_db "github.com/sibabalw/payments-app-sub003/internal/redis-db"
)

const scheduleResolveTask = "schedules:resolve"

// processJob executes one dispatched job from the queue. Optimistic lock
// conflicts and lock contention return the error so asynq retries the task;
// anything else fails the task permanently after the retry budget.
func (b *engineInstance) processJob(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("payments.worker").Start(ctx, "Process Job From Dispatch Queue")
	defer span.End()

	var payload escrow.JobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logrus.Error(err)
		return err
	}

	if err := b.engine.ExecuteJob(ctx, payload.JobID); err != nil {
		if apierror.Retryable(err) {
			logrus.Infof("job %s pushed back for retry: %v", payload.JobID, err)
			return err
		}
		logrus.Errorf("job %s failed: %v", payload.JobID, err)
		return err
	}

	log.Println(" [*] Job Processed", payload.JobID)
	return nil
}

// resolveSchedules is the periodic task that turns due schedules into jobs.
func (b *engineInstance) resolveSchedules(ctx context.Context, _ *asynq.Task) error {
	summary, err := b.engine.RunDueSchedules(ctx)
	if err != nil {
		return err
	}
	if summary.Processed > 0 {
		logrus.Infof("schedule resolution: %+v", summary)
	}
	return nil
}

func initializeQueues(conf *config.Configuration) map[string]int {
	return map[string]int{
		conf.Queue.DispatchQueue: 3,
		scheduleResolveTask:      1,
	}
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: conf.Queue.Concurrency,
			Queues:      queues,
		},
	), nil
}

// initializeScheduler registers the periodic schedule-resolution tick.
func initializeScheduler(conf *config.Configuration) (*asynq.Scheduler, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		nil,
	)
	_, err = scheduler.Register(conf.Engine.ScheduleResolveCron,
		asynq.NewTask(scheduleResolveTask, nil),
		asynq.Queue(scheduleResolveTask))
	if err != nil {
		return nil, err
	}
	return scheduler, nil
}

func initializeTaskHandlers(b *engineInstance, mux *asynq.ServeMux) {
	mux.HandleFunc(b.cnf.Queue.DispatchQueue, b.processJob)
	mux.HandleFunc(scheduleResolveTask, b.resolveSchedules)
}

// workerCommands defines the "workers" command: the asynq worker server, the
// periodic scheduler, and the stuck-job recovery poller in one process.
func workerCommands(b *engineInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start payments engine workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			conf, err := config.Fetch()
			if err != nil {
				log.Fatalf("Error fetching config: %v", err)
			}

			queues := initializeQueues(conf)
			server, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatalf("Error initializing worker server: %v", err)
			}

			scheduler, err := initializeScheduler(conf)
			if err != nil {
				log.Fatalf("Error initializing scheduler: %v", err)
			}
			go func() {
				if err := scheduler.Run(); err != nil {
					log.Fatalf("Error running scheduler: %v", err)
				}
			}()

			recovery := escrow.NewRecoveryProcessor(b.engine)
			recovery.Start(ctx)
			defer recovery.Stop()

			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			if err := server.Run(mux); err != nil {
				log.Fatalf("Error running worker server: %v", err)
			}
		},
	}
	return cmd
}
