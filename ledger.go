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

	"github.com/sirupsen/logrus"

	"github.com/sibabalw/payments-app-sub003/internal/apierror"
	"github.com/sibabalw/payments-app-sub003/model"
)

// RecordEntry appends a pending ledger entry.
func (l *Engine) RecordEntry(ctx context.Context, entry *model.LedgerEntry) (*model.LedgerEntry, error) {
	return l.datasource.RecordLedgerEntry(ctx, entry)
}

// PostEntry transitions an entry PENDING -> POSTED. Idempotent on entries
// already posted.
func (l *Engine) PostEntry(ctx context.Context, entryID string) error {
	return l.datasource.MarkEntryPosted(ctx, entryID)
}

// ReverseEntry creates the offsetting entry for a posted entry and links the
// two atomically.
func (l *Engine) ReverseEntry(ctx context.Context, entryID, reason string) (*model.LedgerEntry, error) {
	return l.datasource.ReverseEntry(ctx, entryID, reason)
}

// EnsureLedgerAccounts returns the escrow account for a business, creating it
// if missing. A system counter-account with empty BusinessID is created the
// same way on first use.
func (l *Engine) EnsureLedgerAccounts(ctx context.Context, businessID, currency string) (*model.LedgerAccount, *model.LedgerAccount, error) {
	escrowAccount, err := l.getOrCreateAccount(ctx, businessID, model.AccountTypeEscrow, currency)
	if err != nil {
		return nil, nil, err
	}
	systemAccount, err := l.getOrCreateAccount(ctx, "", model.AccountTypeSystem, currency)
	if err != nil {
		return nil, nil, err
	}
	return escrowAccount, systemAccount, nil
}

func (l *Engine) getOrCreateAccount(ctx context.Context, businessID, accountType, currency string) (*model.LedgerAccount, error) {
	account, err := l.datasource.GetLedgerAccountByType(ctx, businessID, accountType)
	if err == nil {
		return account, nil
	}
	if !apierror.Is(err, apierror.ErrNotFound) {
		return nil, err
	}
	created, err := l.datasource.CreateLedgerAccount(ctx, model.LedgerAccount{
		BusinessID:  businessID,
		AccountType: accountType,
		Currency:    currency,
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// recordJobLedgerEntries writes the double entry for an executed job: a debit
// against the business escrow account and a matching credit against the
// system account, grouped by the job ID as correlation, then posts both.
func (l *Engine) recordJobLedgerEntries(ctx context.Context, job *model.Job) error {
	escrowAccount, systemAccount, err := l.EnsureLedgerAccounts(ctx, job.BusinessID, job.Currency)
	if err != nil {
		return err
	}

	debit := &model.LedgerEntry{
		AccountID:        escrowAccount.AccountID,
		BusinessID:       job.BusinessID,
		TransactionType:  model.EntryDebit,
		AmountMinorUnits: job.AmountMinorUnits,
		Currency:         job.Currency,
		CorrelationID:    job.JobID,
		Description:      "job execution",
	}
	credit := &model.LedgerEntry{
		AccountID:        systemAccount.AccountID,
		TransactionType:  model.EntryCredit,
		AmountMinorUnits: job.AmountMinorUnits,
		Currency:         job.Currency,
		CorrelationID:    job.JobID,
		Description:      "job execution",
	}

	debit, err = l.datasource.RecordLedgerEntry(ctx, debit)
	if err != nil {
		return err
	}
	credit, err = l.datasource.RecordLedgerEntry(ctx, credit)
	if err != nil {
		return err
	}
	if err := l.datasource.MarkEntryPosted(ctx, debit.EntryID); err != nil {
		return err
	}
	if err := l.datasource.MarkEntryPosted(ctx, credit.EntryID); err != nil {
		return err
	}
	logrus.Infof("posted ledger pair for job %s (seq %d/%d)", job.JobID, debit.SequenceNumber, credit.SequenceNumber)
	return nil
}
