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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

var ConfigStore atomic.Value

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"PAYMENTS_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"PAYMENTS_REDIS_DNS"`
}

type QueueConfig struct {
	DispatchQueue    string `json:"dispatch_queue" envconfig:"PAYMENTS_QUEUE_DISPATCH"`
	Concurrency      int    `json:"concurrency" envconfig:"PAYMENTS_QUEUE_CONCURRENCY"`
	MaxRetryAttempts int    `json:"max_retry_attempts" envconfig:"PAYMENTS_QUEUE_MAX_RETRY_ATTEMPTS"`
}

// EngineConfig carries the operational tunables of the consistency engine.
// Durations are in seconds so they round-trip cleanly through env vars.
type EngineConfig struct {
	StuckJobThresholdSec      int    `json:"stuck_job_threshold_sec" envconfig:"PAYMENTS_ENGINE_STUCK_THRESHOLD_SEC"`
	RecoveryBatchSize         int    `json:"recovery_batch_size" envconfig:"PAYMENTS_ENGINE_RECOVERY_BATCH_SIZE"`
	RecoveryPollIntervalSec   int    `json:"recovery_poll_interval_sec" envconfig:"PAYMENTS_ENGINE_RECOVERY_POLL_INTERVAL_SEC"`
	MaxWorkers                int    `json:"max_workers" envconfig:"PAYMENTS_ENGINE_MAX_WORKERS"`
	LockTTLSec                int    `json:"lock_ttl_sec" envconfig:"PAYMENTS_ENGINE_LOCK_TTL_SEC"`
	LockWaitSec               int    `json:"lock_wait_sec" envconfig:"PAYMENTS_ENGINE_LOCK_WAIT_SEC"`
	ReconciliationToleranceMU int    `json:"reconciliation_tolerance_minor_units" envconfig:"PAYMENTS_ENGINE_RECON_TOLERANCE_MU"`
	ScheduleResolveCron       string `json:"schedule_resolve_cron" envconfig:"PAYMENTS_ENGINE_SCHEDULE_RESOLVE_CRON"`
}

type Configuration struct {
	ProjectName string           `json:"project_name" envconfig:"PAYMENTS_PROJECT_NAME"`
	DataSource  DataSourceConfig `json:"data_source"`
	Redis       RedisConfig      `json:"redis"`
	Queue       QueueConfig      `json:"queue"`
	Engine      EngineConfig     `json:"engine"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("payments", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called payments.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		cnf.ProjectName = "Payments Engine"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Queue.DispatchQueue == "" {
		cnf.Queue.DispatchQueue = "payments:dispatch"
	}
	if cnf.Queue.Concurrency <= 0 {
		cnf.Queue.Concurrency = 10
	}
	if cnf.Queue.MaxRetryAttempts <= 0 {
		cnf.Queue.MaxRetryAttempts = 3
	}

	if cnf.Engine.StuckJobThresholdSec <= 0 {
		cnf.Engine.StuckJobThresholdSec = 3600
	}
	if cnf.Engine.RecoveryBatchSize <= 0 {
		cnf.Engine.RecoveryBatchSize = 100
	}
	if cnf.Engine.RecoveryPollIntervalSec <= 0 {
		cnf.Engine.RecoveryPollIntervalSec = 30
	}
	if cnf.Engine.MaxWorkers <= 0 {
		cnf.Engine.MaxWorkers = 10
	}
	if cnf.Engine.LockTTLSec <= 0 {
		cnf.Engine.LockTTLSec = 300
	}
	if cnf.Engine.LockWaitSec <= 0 {
		cnf.Engine.LockWaitSec = 5
	}
	if cnf.Engine.ReconciliationToleranceMU <= 0 {
		cnf.Engine.ReconciliationToleranceMU = 1
	}
	if cnf.Engine.ScheduleResolveCron == "" {
		cnf.Engine.ScheduleResolveCron = "*/5 * * * *"
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	_ = mockConfig.validateAndAddDefaults()
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
