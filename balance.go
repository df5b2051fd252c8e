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

	"github.com/sibabalw/payments-app-sub003/internal/apierror"
)

// GetAvailableBalance returns a business's available escrow balance in minor
// units. With useCache the stored balance column is returned when present;
// otherwise the authoritative recalculation runs. includePending adds
// deposits that are recorded but not yet confirmed, an optimistic view that
// is never used for reconciliation.
func (l *Engine) GetAvailableBalance(ctx context.Context, businessID string, useCache, includePending bool) (int64, error) {
	var balance int64
	var err error

	if useCache {
		stored, storedErr := l.datasource.GetStoredBalance(ctx, businessID)
		if storedErr == nil {
			balance = stored.BalanceMinorUnits
		} else if apierror.Is(storedErr, apierror.ErrNotFound) {
			balance, err = l.RecalculateBalance(ctx, businessID)
		} else {
			return 0, storedErr
		}
	} else {
		balance, err = l.RecalculateBalance(ctx, businessID)
	}
	if err != nil {
		return 0, err
	}

	if includePending {
		pending, err := l.datasource.SumPendingAuthorized(ctx, businessID)
		if err != nil {
			return 0, err
		}
		balance += pending
	}
	return balance, nil
}

// RecalculateBalance performs the authoritative balance computation,
// bypassing the cache: confirmed deposit authorized amounts, minus jobs
// holding or having spent escrow funds, minus principal manually returned.
// It never writes; reconciliation treats it as ground truth and compares it
// against the stored column, so refreshing the column here would mask the
// very drift reconciliation exists to catch. Flows that legitimately change
// the balance call RefreshStoredBalance instead.
func (l *Engine) RecalculateBalance(ctx context.Context, businessID string) (int64, error) {
	deposits, err := l.datasource.SumConfirmedAuthorized(ctx, businessID)
	if err != nil {
		return 0, err
	}
	committed, err := l.datasource.SumCommittedJobAmounts(ctx, businessID)
	if err != nil {
		return 0, err
	}
	returned, err := l.datasource.SumReturnedPrincipal(ctx, businessID)
	if err != nil {
		return 0, err
	}

	return deposits - committed - returned, nil
}

// RefreshStoredBalance recalculates and writes the result back to the stored
// balance column. Called after balance-changing events such as deposit
// confirmation or a principal return.
func (l *Engine) RefreshStoredBalance(ctx context.Context, businessID string) (int64, error) {
	balance, err := l.RecalculateBalance(ctx, businessID)
	if err != nil {
		return 0, err
	}
	if err := l.datasource.UpdateStoredBalance(ctx, businessID, balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// LedgerBalance returns the ledger-derived escrow balance for a business.
func (l *Engine) LedgerBalance(ctx context.Context, businessID string) (int64, error) {
	return l.datasource.GetLedgerBalance(ctx, businessID, "escrow")
}
