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
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/sibabalw/payments-app-sub003/config"
	redis_db "github.com/sibabalw/payments-app-sub003/internal/redis-db"
	"github.com/sibabalw/payments-app-sub003/model"
)

// Queue wraps the asynq client used to dispatch materialized jobs to the
// gateway workers.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// JobPayload is the task body carried on the dispatch queue. Only the job ID
// travels; workers re-read the row so they always act on current state.
type JobPayload struct {
	JobID string `json:"job_id"`
}

// NewQueue initializes the dispatch queue from the configuration.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		return nil, err
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	return &Queue{
		Client:    asynq.NewClient(queueOptions),
		Inspector: asynq.NewInspector(queueOptions),
	}, nil
}

// Dispatch enqueues a job for gateway execution. The task ID is the job ID,
// so re-dispatching the same job while a task is still queued is a no-op
// rather than a duplicate execution.
func (q *Queue) Dispatch(ctx context.Context, job *model.Job) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(JobPayload{JobID: job.JobID})
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{
		asynq.TaskID(job.JobID),
		asynq.Queue(cfg.Queue.DispatchQueue),
		asynq.MaxRetry(cfg.Queue.MaxRetryAttempts),
	}
	task := asynq.NewTask(cfg.Queue.DispatchQueue, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			logrus.Infof("job %s already queued, skipping dispatch", job.JobID)
			return nil
		}
		return err
	}
	logrus.Infof("enqueued job %s on %s", job.JobID, info.Queue)
	return nil
}
