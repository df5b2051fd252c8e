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
	"embed"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sibabalw/payments-app-sub003/config"
	"github.com/sibabalw/payments-app-sub003/database"
	redis_db "github.com/sibabalw/payments-app-sub003/internal/redis-db"
	"github.com/sibabalw/payments-app-sub003/model"
)

// SQLFiles holds the versioned schema migrations applied by the migrate
// command.
//
//go:embed sql/*.sql
var SQLFiles embed.FS

// Engine is the main struct of the payments consistency engine. All balance,
// job, schedule, settlement, and reconciliation operations hang off it.
type Engine struct {
	queue      *Queue
	redis      redis.UniversalClient
	datasource database.IDataSource
	gateway    PaymentGateway
	calculator model.PayrollCalculator
	clock      model.Clock
}

// NewEngine initializes the engine with the provided datasource. It fetches
// the configuration and wires the Redis client, dispatch queue, default
// gateway, and payroll calculator.
func NewEngine(db database.IDataSource) (*Engine, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient(fmt.Sprintf("redis://%s", configuration.Redis.Dns))
	if err != nil {
		return nil, err
	}
	newQueue, err := NewQueue(configuration)
	if err != nil {
		return nil, err
	}
	return &Engine{
		datasource: db,
		queue:      newQueue,
		redis:      redisClient.Client(),
		gateway:    NewRecordingGateway(),
		calculator: NewStatutoryCalculator(),
		clock:      model.SystemClock,
	}, nil
}

// NewEngineWithDeps builds an engine with every collaborator supplied by the
// caller. Tests use it to inject mocks and a fixed clock.
func NewEngineWithDeps(db database.IDataSource, redisClient redis.UniversalClient, queue *Queue, gateway PaymentGateway, calculator model.PayrollCalculator, clock model.Clock) *Engine {
	if clock == nil {
		clock = model.SystemClock
	}
	if gateway == nil {
		gateway = NewRecordingGateway()
	}
	if calculator == nil {
		calculator = NewStatutoryCalculator()
	}
	return &Engine{
		datasource: db,
		redis:      redisClient,
		queue:      queue,
		gateway:    gateway,
		calculator: calculator,
		clock:      clock,
	}
}
