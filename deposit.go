package escrow

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sibabalw/payments-app-sub003/model"
)

// RecordDeposit persists a new pending deposit. Nothing reaches the ledger
// until confirmation.
func (l *Engine) RecordDeposit(ctx context.Context, deposit *model.EscrowDeposit) (*model.EscrowDeposit, error) {
	return l.datasource.RecordDeposit(ctx, deposit)
}

// ConfirmDeposit marks a deposit confirmed and posts the authorized amount to
// the business escrow ledger account.
func (l *Engine) ConfirmDeposit(ctx context.Context, depositID string) (*model.EscrowDeposit, error) {
	deposit, err := l.datasource.GetDeposit(ctx, depositID)
	if err != nil {
		return nil, err
	}
	confirmedAt := l.clock()
	if err := l.datasource.ConfirmDeposit(ctx, depositID, confirmedAt); err != nil {
		return nil, err
	}
	deposit.Status = model.DepositStatusConfirmed
	deposit.ConfirmedAt = &confirmedAt

	if err := l.postDepositEntries(ctx, deposit, model.EntryCredit, deposit.AuthorizedAmountMinorUnits, "deposit confirmed"); err != nil {
		return nil, err
	}
	if _, err := l.RefreshStoredBalance(ctx, deposit.BusinessID); err != nil {
		logrus.Errorf("balance refresh after deposit %s failed: %v", depositID, err)
	}
	return deposit, nil
}

// ReleaseDepositFee records the fee release timestamp. The fee never entered
// the escrow balance, so no ledger movement happens here.
func (l *Engine) ReleaseDepositFee(ctx context.Context, depositID string, releasedAt time.Time) error {
	return l.datasource.ReleaseDepositFee(ctx, depositID, releasedAt)
}

// ReturnDepositPrincipal sends part of a confirmed deposit back to the
// business and debits the escrow account accordingly.
func (l *Engine) ReturnDepositPrincipal(ctx context.Context, depositID string, amountMinorUnits int64) error {
	deposit, err := l.datasource.GetDeposit(ctx, depositID)
	if err != nil {
		return err
	}
	if err := l.datasource.ReturnDepositPrincipal(ctx, depositID, amountMinorUnits, l.clock()); err != nil {
		return err
	}
	if err := l.postDepositEntries(ctx, deposit, model.EntryDebit, amountMinorUnits, "principal returned"); err != nil {
		return err
	}
	if _, err := l.RefreshStoredBalance(ctx, deposit.BusinessID); err != nil {
		logrus.Errorf("balance refresh after return on %s failed: %v", depositID, err)
	}
	return nil
}

// postDepositEntries writes and posts the double entry for a deposit
// movement. The deposit ID groups the pair.
func (l *Engine) postDepositEntries(ctx context.Context, deposit *model.EscrowDeposit, escrowSide string, amountMinorUnits int64, description string) error {
	escrowAccount, systemAccount, err := l.EnsureLedgerAccounts(ctx, deposit.BusinessID, deposit.Currency)
	if err != nil {
		return err
	}

	escrowEntry := &model.LedgerEntry{
		AccountID:        escrowAccount.AccountID,
		BusinessID:       deposit.BusinessID,
		TransactionType:  escrowSide,
		AmountMinorUnits: amountMinorUnits,
		Currency:         deposit.Currency,
		CorrelationID:    deposit.DepositID,
		Description:      description,
	}
	systemEntry := &model.LedgerEntry{
		AccountID:        systemAccount.AccountID,
		TransactionType:  model.OppositeTransactionType(escrowSide),
		AmountMinorUnits: amountMinorUnits,
		Currency:         deposit.Currency,
		CorrelationID:    deposit.DepositID,
		Description:      description,
	}

	escrowEntry, err = l.datasource.RecordLedgerEntry(ctx, escrowEntry)
	if err != nil {
		return err
	}
	systemEntry, err = l.datasource.RecordLedgerEntry(ctx, systemEntry)
	if err != nil {
		return err
	}
	if err := l.datasource.MarkEntryPosted(ctx, escrowEntry.EntryID); err != nil {
		return err
	}
	return l.datasource.MarkEntryPosted(ctx, systemEntry.EntryID)
}
