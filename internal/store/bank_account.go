package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

type bankAccountStore struct {
	db *sqlx.DB
}

func (s *bankAccountStore) GetSyncHash(ctx context.Context, dolibarrID int64) (string, bool, error) {
	var hash string
	err := s.db.GetContext(ctx, &hash,
		`SELECT sync_hash FROM fin_bank_accounts WHERE dolibarr_id = $1`, dolibarrID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return hash, true, nil
}

func (s *bankAccountStore) Insert(ctx context.Context, acct *BankAccount) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO fin_bank_accounts (
		dolibarr_id, ref, label, bank_name, account_number, currency_code,
		balance, is_open, sync_hash, first_synced_at, last_synced_at
	) VALUES (
		:dolibarr_id, :ref, :label, :bank_name, :account_number, :currency_code,
		:balance, :is_open, :sync_hash, now(), now()
	)`, acct)
	return err
}

func (s *bankAccountStore) Update(ctx context.Context, acct *BankAccount) error {
	_, err := s.db.NamedExecContext(ctx, `UPDATE fin_bank_accounts SET
		ref = :ref, label = :label, bank_name = :bank_name,
		account_number = :account_number, currency_code = :currency_code,
		balance = :balance, is_open = :is_open, sync_hash = :sync_hash,
		last_synced_at = now()
	WHERE dolibarr_id = :dolibarr_id`, acct)
	return err
}

// LedgerCodes maps a bank account's external id to its ledger account code.
// Accounts without a number are omitted; the deriver falls back to the
// default bank code for those.
func (s *bankAccountStore) LedgerCodes(ctx context.Context) (map[int64]string, error) {
	rows := []struct {
		DolibarrID    int64   `db:"dolibarr_id"`
		AccountNumber *string `db:"account_number"`
	}{}
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT dolibarr_id, account_number FROM fin_bank_accounts`); err != nil {
		return nil, err
	}

	codes := make(map[int64]string, len(rows))
	for _, row := range rows {
		if row.AccountNumber != nil && *row.AccountNumber != "" {
			codes[row.DolibarrID] = *row.AccountNumber
		}
	}
	return codes, nil
}
