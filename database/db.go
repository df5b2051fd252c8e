package database

import (
	"database/sql"
	"log"
	"sync"

	_ "github.com/lib/pq"

	"github.com/sibabalw/payments-app-sub003/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// Open connects and pings without touching the schema. The migrate command
// uses it so sql-migrate stays the only writer of schema changes there.
func Open(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database connection error: %v", err)
		return nil, err
	}
	return db, nil
}

// ConnectDB opens the connection and bootstraps the baseline schema, which
// keeps development and test databases usable without a migration step.
// Production schema changes go through the versioned migrations in sql/.
func ConnectDB(dns string) (*sql.DB, error) {
	db, err := Open(dns)
	if err != nil {
		return nil, err
	}
	for _, create := range []func(*sql.DB) error{
		createBusinessTable,
		createLedgerAccountTable,
		createLedgerEntryTable,
		createEscrowDepositTable,
		createEscrowBalanceTable,
		createScheduleTable,
		createSettlementWindowTable,
		createJobTable,
		createReconciliationTable,
		createBalanceSnapshotTable,
	} {
		if err := create(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

func createBusinessTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS businesses (
			id SERIAL PRIMARY KEY,
			business_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			currency TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	return err
}

func createLedgerAccountTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ledger_accounts (
			id SERIAL PRIMARY KEY,
			account_id TEXT NOT NULL UNIQUE,
			business_id TEXT REFERENCES businesses(business_id),
			account_type TEXT NOT NULL CHECK (account_type IN ('escrow', 'fee', 'system')),
			currency TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	return err
}

// createLedgerEntryTable creates the append-only journal. ledger_sequence is a
// single ledger-wide counter so sequence numbers give a total order across all
// accounts.
func createLedgerEntryTable(db *sql.DB) error {
	if _, err := db.Exec(`CREATE SEQUENCE IF NOT EXISTS ledger_sequence`); err != nil {
		return err
	}
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ledger_entries (
			id SERIAL PRIMARY KEY,
			entry_id TEXT NOT NULL UNIQUE,
			account_id TEXT NOT NULL REFERENCES ledger_accounts(account_id),
			business_id TEXT,
			transaction_type TEXT NOT NULL CHECK (transaction_type IN ('DEBIT', 'CREDIT')),
			amount_minor_units BIGINT NOT NULL,
			currency TEXT NOT NULL,
			correlation_id TEXT NOT NULL,
			sequence_number BIGINT NOT NULL UNIQUE,
			posting_state TEXT NOT NULL CHECK (posting_state IN ('PENDING', 'POSTED', 'REVERSED')),
			description TEXT,
			reversal_of TEXT,
			reversed_by TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	return err
}

func createEscrowDepositTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS escrow_deposits (
			id SERIAL PRIMARY KEY,
			deposit_id TEXT NOT NULL UNIQUE,
			business_id TEXT NOT NULL REFERENCES businesses(business_id),
			amount_minor_units BIGINT NOT NULL,
			fee_amount_minor_units BIGINT NOT NULL DEFAULT 0,
			authorized_amount_minor_units BIGINT NOT NULL,
			returned_amount_minor_units BIGINT NOT NULL DEFAULT 0,
			currency TEXT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('pending', 'confirmed', 'completed')),
			confirmed_at TIMESTAMP,
			fee_released_at TIMESTAMP,
			principal_returned_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	return err
}

func createEscrowBalanceTable(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS escrow_balances (
			business_id TEXT PRIMARY KEY REFERENCES businesses(business_id),
			balance_minor_units BIGINT NOT NULL DEFAULT 0,
			version INTEGER NOT NULL DEFAULT 1,
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return err
	}
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS balance_corrections (
			id SERIAL PRIMARY KEY,
			business_id TEXT NOT NULL,
			previous_minor_units BIGINT NOT NULL,
			corrected_minor_units BIGINT NOT NULL,
			reason TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func createScheduleTable(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schedules (
			id SERIAL PRIMARY KEY,
			schedule_id TEXT NOT NULL UNIQUE,
			business_id TEXT NOT NULL REFERENCES businesses(business_id),
			job_type TEXT NOT NULL CHECK (job_type IN ('payment', 'payroll')),
			schedule_type TEXT NOT NULL CHECK (schedule_type IN ('recurring', 'one_time')),
			frequency TEXT,
			pay_day INTEGER NOT NULL DEFAULT 0,
			next_run_at TIMESTAMP,
			last_run_at TIMESTAMP,
			status TEXT NOT NULL CHECK (status IN ('active', 'paused', 'cancelled')),
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`); err != nil {
		return err
	}
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schedule_recipients (
			id SERIAL PRIMARY KEY,
			schedule_id TEXT NOT NULL REFERENCES schedules(schedule_id),
			recipient_id TEXT,
			employee_id TEXT,
			amount_minor_units BIGINT NOT NULL,
			snapshot JSONB
		)
	`)
	return err
}

func createSettlementWindowTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS settlement_windows (
			id SERIAL PRIMARY KEY,
			window_id TEXT NOT NULL UNIQUE,
			window_type TEXT NOT NULL,
			window_start TIMESTAMP NOT NULL,
			window_end TIMESTAMP NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('open', 'processing', 'processed')),
			transaction_count INTEGER NOT NULL DEFAULT 0,
			total_amount_minor_units BIGINT NOT NULL DEFAULT 0,
			processed_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func createJobTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id SERIAL PRIMARY KEY,
			job_id TEXT NOT NULL UNIQUE,
			job_type TEXT NOT NULL CHECK (job_type IN ('payment', 'payroll')),
			business_id TEXT NOT NULL REFERENCES businesses(business_id),
			schedule_id TEXT REFERENCES schedules(schedule_id),
			employee_id TEXT,
			recipient_id TEXT,
			amount_minor_units BIGINT NOT NULL,
			gross_salary_minor_units BIGINT NOT NULL DEFAULT 0,
			net_salary_minor_units BIGINT NOT NULL DEFAULT 0,
			currency TEXT NOT NULL,
			tax_breakdown JSONB,
			recipient_snapshot JSONB,
			calculation_hash TEXT NOT NULL,
			calculation_version INTEGER NOT NULL DEFAULT 1,
			period_start DATE NOT NULL,
			period_end DATE NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('pending', 'processing', 'succeeded', 'failed')),
			error_message TEXT,
			processed_at TIMESTAMP,
			processing_started_at TIMESTAMP,
			escrow_deposit_id TEXT,
			fee_released_at TIMESTAMP,
			principal_returned_at TIMESTAMP,
			permanently_failed_at TIMESTAMP,
			retry_count INTEGER NOT NULL DEFAULT 0,
			settlement_window_id TEXT REFERENCES settlement_windows(window_id),
			version INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	return err
}

func createReconciliationTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS reconciliation_discrepancies (
			id SERIAL PRIMARY KEY,
			discrepancy_id TEXT NOT NULL UNIQUE,
			business_id TEXT NOT NULL,
			stored_minor_units BIGINT NOT NULL,
			calculated_minor_units BIGINT NOT NULL,
			ledger_minor_units BIGINT NOT NULL,
			difference_minor_units BIGINT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('open', 'approved', 'compensated', 'resolved')),
			approved_by TEXT,
			approved_at TIMESTAMP,
			resolved_at TIMESTAMP,
			notes TEXT,
			auto_fixed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func createBalanceSnapshotTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS balance_snapshots (
			id SERIAL PRIMARY KEY,
			snapshot_id TEXT NOT NULL UNIQUE,
			business_id TEXT NOT NULL,
			account_type TEXT NOT NULL,
			snapshot_date DATE NOT NULL,
			balance_minor_units BIGINT NOT NULL,
			sequence_number BIGINT NOT NULL,
			checksum TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (business_id, account_type, snapshot_date)
		)
	`)
	return err
}
