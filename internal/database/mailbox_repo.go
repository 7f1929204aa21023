package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/dispomail/dispomail/pkg/models"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned when trying to insert a duplicate record
var ErrAlreadyExists = errors.New("record already exists")

// MailboxFilter narrows ListMailboxes results. Zero values mean "any".
type MailboxFilter struct {
	Status models.VerificationStatus
	TagID  int64
}

// CreateMailbox creates a new mailbox record
func (db *DB) CreateMailbox(ctx context.Context, mb *models.Mailbox) error {
	query := `
		INSERT INTO mailboxes (public_id, address, status, verify_code, verify_method, attempt_count, last_attempt_at, tag_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		mb.PublicID,
		mb.Address,
		mb.Status,
		mb.VerifyCode,
		mb.VerifyMethod,
		mb.AttemptCount,
		mb.LastAttemptAt,
		mb.TagID,
		now,
		now,
	)
	if err != nil {
		var sqlErr sqlite3.Error
		if errors.As(err, &sqlErr) && sqlErr.Code == sqlite3.ErrConstraint {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create mailbox: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	mb.ID = id
	mb.CreatedAt = now
	mb.UpdatedAt = now
	return nil
}

// GetMailboxByAddress returns a mailbox by its full address
func (db *DB) GetMailboxByAddress(ctx context.Context, address string) (*models.Mailbox, error) {
	var mb models.Mailbox
	query := `SELECT * FROM mailboxes WHERE address = ?`
	err := db.GetContext(ctx, &mb, query, address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mailbox: %w", err)
	}
	return &mb, nil
}

// ListMailboxes returns mailboxes matching the filter, newest first
func (db *DB) ListMailboxes(ctx context.Context, filter MailboxFilter) ([]*models.Mailbox, error) {
	query := `SELECT * FROM mailboxes WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.TagID != 0 {
		query += ` AND tag_id = ?`
		args = append(args, filter.TagID)
	}
	query += ` ORDER BY created_at DESC`

	var boxes []*models.Mailbox
	if err := db.SelectContext(ctx, &boxes, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}
	return boxes, nil
}

// UpdateMailboxVerification persists the verification fields of a mailbox
func (db *DB) UpdateMailboxVerification(ctx context.Context, mb *models.Mailbox) error {
	query := `
		UPDATE mailboxes
		SET status = ?, verify_code = ?, verify_method = ?, attempt_count = ?, last_attempt_at = ?, updated_at = ?
		WHERE id = ?
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		mb.Status,
		mb.VerifyCode,
		mb.VerifyMethod,
		mb.AttemptCount,
		mb.LastAttemptAt,
		now,
		mb.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update mailbox verification: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	mb.UpdatedAt = now
	return nil
}

// SetMailboxTag assigns or clears (tagID == nil) the tag of a mailbox
func (db *DB) SetMailboxTag(ctx context.Context, mailboxID int64, tagID *int64) error {
	query := `UPDATE mailboxes SET tag_id = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, tagID, time.Now(), mailboxID)
	if err != nil {
		return fmt.Errorf("failed to set mailbox tag: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMailbox deletes a mailbox record
func (db *DB) DeleteMailbox(ctx context.Context, id int64) error {
	query := `DELETE FROM mailboxes WHERE id = ?`
	if _, err := db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete mailbox: %w", err)
	}
	return nil
}

// GetStatistics returns aggregate counts over all mailboxes
func (db *DB) GetStatistics(ctx context.Context) (*models.Statistics, error) {
	var stats models.Statistics
	query := `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(status = 'pending'), 0) AS pending,
			COALESCE(SUM(status = 'verified'), 0) AS verified,
			COALESCE(SUM(status = 'failed'), 0) AS failed,
			COALESCE(SUM(status = 'expired'), 0) AS expired,
			COALESCE(SUM(tag_id IS NOT NULL), 0) AS tagged
		FROM mailboxes
	`
	if err := db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("failed to load statistics: %w", err)
	}
	return &stats, nil
}
