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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/sibabalw/payments-app-sub003/database/mocks"
	"github.com/sibabalw/payments-app-sub003/internal/apierror"
	"github.com/sibabalw/payments-app-sub003/model"
)

// A business deposits 10000.00 with a 250.00 fee, so 9750.00 is authorized.
// One job worth 5000.00 holds funds. The available balance must come out at
// 4750.00 regardless of which path computes it.
func TestRecalculateBalance(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	mockDS.On("SumConfirmedAuthorized", mock.Anything, "bus_1").Return(int64(975000), nil)
	mockDS.On("SumCommittedJobAmounts", mock.Anything, "bus_1").Return(int64(500000), nil)
	mockDS.On("SumReturnedPrincipal", mock.Anything, "bus_1").Return(int64(0), nil)

	balance, err := engine.RecalculateBalance(context.Background(), "bus_1")
	assert.NoError(t, err)
	assert.Equal(t, int64(475000), balance)
	mockDS.AssertNotCalled(t, "UpdateStoredBalance", mock.Anything, mock.Anything, mock.Anything)
	mockDS.AssertExpectations(t)
}

// Only the explicit refresh writes the stored column; the recalculation
// itself stays read-only so reconciliation can use it as an independent
// comparison point.
func TestRefreshStoredBalance_WritesBack(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	mockDS.On("SumConfirmedAuthorized", mock.Anything, "bus_1").Return(int64(975000), nil)
	mockDS.On("SumCommittedJobAmounts", mock.Anything, "bus_1").Return(int64(500000), nil)
	mockDS.On("SumReturnedPrincipal", mock.Anything, "bus_1").Return(int64(0), nil)
	mockDS.On("UpdateStoredBalance", mock.Anything, "bus_1", int64(475000)).Return(nil)

	balance, err := engine.RefreshStoredBalance(context.Background(), "bus_1")
	assert.NoError(t, err)
	assert.Equal(t, int64(475000), balance)
	mockDS.AssertExpectations(t)
}

func TestGetAvailableBalance_UsesStoredBalance(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	mockDS.On("GetStoredBalance", mock.Anything, "bus_1").
		Return(&model.EscrowBalance{BusinessID: "bus_1", BalanceMinorUnits: 475000}, nil)

	balance, err := engine.GetAvailableBalance(context.Background(), "bus_1", true, false)
	assert.NoError(t, err)
	assert.Equal(t, int64(475000), balance)
	mockDS.AssertNotCalled(t, "SumConfirmedAuthorized", mock.Anything, mock.Anything)
	mockDS.AssertExpectations(t)
}

func TestGetAvailableBalance_CacheMissFallsBackToRecalculation(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	mockDS.On("GetStoredBalance", mock.Anything, "bus_1").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Balance not found", nil))
	mockDS.On("SumConfirmedAuthorized", mock.Anything, "bus_1").Return(int64(975000), nil)
	mockDS.On("SumCommittedJobAmounts", mock.Anything, "bus_1").Return(int64(500000), nil)
	mockDS.On("SumReturnedPrincipal", mock.Anything, "bus_1").Return(int64(0), nil)

	balance, err := engine.GetAvailableBalance(context.Background(), "bus_1", true, false)
	assert.NoError(t, err)
	assert.Equal(t, int64(475000), balance)
	mockDS.AssertExpectations(t)
}

func TestGetAvailableBalance_IncludePendingAddsUnconfirmedDeposits(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	mockDS.On("GetStoredBalance", mock.Anything, "bus_1").
		Return(&model.EscrowBalance{BusinessID: "bus_1", BalanceMinorUnits: 475000}, nil)
	mockDS.On("SumPendingAuthorized", mock.Anything, "bus_1").Return(int64(200000), nil)

	balance, err := engine.GetAvailableBalance(context.Background(), "bus_1", true, true)
	assert.NoError(t, err)
	assert.Equal(t, int64(675000), balance)
	mockDS.AssertExpectations(t)
}

func TestRecalculateBalance_SubtractsReturnedPrincipal(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	engine := newTestEngine(mockDS)

	mockDS.On("SumConfirmedAuthorized", mock.Anything, "bus_1").Return(int64(975000), nil)
	mockDS.On("SumCommittedJobAmounts", mock.Anything, "bus_1").Return(int64(500000), nil)
	mockDS.On("SumReturnedPrincipal", mock.Anything, "bus_1").Return(int64(100000), nil)

	balance, err := engine.RecalculateBalance(context.Background(), "bus_1")
	assert.NoError(t, err)
	assert.Equal(t, int64(375000), balance)
	mockDS.AssertExpectations(t)
}
