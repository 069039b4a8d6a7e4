// ABOUTME: SQLite persistence for staff accounts
// ABOUTME: Staff directory lookups including available-agent selection

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// CreateStaffAccount inserts a staff account.
// Returns ErrDuplicateStaff when the email is already registered.
func (s *SQLiteStore) CreateStaffAccount(ctx context.Context, acct *StaffAccount) error {
	query := `
		INSERT INTO staff_accounts (id, email, name, password_hash, role, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		acct.ID,
		acct.Email,
		acct.Name,
		acct.PasswordHash,
		acct.Role,
		acct.Status,
		acct.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateStaff
		}
		return fmt.Errorf("inserting staff account: %w", err)
	}

	return nil
}

// GetStaffAccount returns the staff account with the given id, or ErrNotFound
func (s *SQLiteStore) GetStaffAccount(ctx context.Context, id string) (*StaffAccount, error) {
	acct, err := scanStaffAccount(s.db.QueryRowContext(ctx, staffSelect+` WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying staff account: %w", err)
	}
	return acct, nil
}

// GetStaffByEmail returns the staff account with the given email, or ErrNotFound
func (s *SQLiteStore) GetStaffByEmail(ctx context.Context, email string) (*StaffAccount, error) {
	acct, err := scanStaffAccount(s.db.QueryRowContext(ctx, staffSelect+` WHERE email = ?`, email))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying staff account by email: %w", err)
	}
	return acct, nil
}

// ListStaffAccounts returns all staff accounts in creation order
func (s *SQLiteStore) ListStaffAccounts(ctx context.Context) ([]*StaffAccount, error) {
	rows, err := s.db.QueryContext(ctx, staffSelect+` ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing staff accounts: %w", err)
	}
	defer rows.Close()

	var accts []*StaffAccount
	for rows.Next() {
		acct, err := scanStaffAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning staff account: %w", err)
		}
		accts = append(accts, acct)
	}
	return accts, rows.Err()
}

// FindAvailableAgent returns the first active agent in store order, or
// ErrNotFound when no agent is available. No fairness or load policy; the
// assignment policy layer exists so one can be substituted.
func (s *SQLiteStore) FindAvailableAgent(ctx context.Context) (*StaffAccount, error) {
	query := staffSelect + ` WHERE role = ? AND status = ? ORDER BY created_at ASC, id ASC LIMIT 1`

	acct, err := scanStaffAccount(s.db.QueryRowContext(ctx, query, StaffRoleAgent, StaffStatusActive))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying available agent: %w", err)
	}
	return acct, nil
}

const staffSelect = `
	SELECT id, email, name, password_hash, role, status, created_at
	FROM staff_accounts`

func scanStaffAccount(row rowScanner) (*StaffAccount, error) {
	var acct StaffAccount
	var createdAtStr string

	err := row.Scan(
		&acct.ID,
		&acct.Email,
		&acct.Name,
		&acct.PasswordHash,
		&acct.Role,
		&acct.Status,
		&createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	acct.CreatedAt, err = time.Parse(timeFormat, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &acct, nil
}
