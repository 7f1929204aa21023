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

// CreateTag creates a new tag
func (db *DB) CreateTag(ctx context.Context, tag *models.Tag) error {
	query := `INSERT INTO tags (name, color, created_at) VALUES (?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query, tag.Name, tag.Color, now)
	if err != nil {
		var sqlErr sqlite3.Error
		if errors.As(err, &sqlErr) && sqlErr.Code == sqlite3.ErrConstraint {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create tag: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	tag.ID = id
	tag.CreatedAt = now
	return nil
}

// GetTagByName returns a tag by name
func (db *DB) GetTagByName(ctx context.Context, name string) (*models.Tag, error) {
	var tag models.Tag
	query := `SELECT * FROM tags WHERE name = ?`
	err := db.GetContext(ctx, &tag, query, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}
	return &tag, nil
}

// ListTags returns all tags ordered by name
func (db *DB) ListTags(ctx context.Context) ([]*models.Tag, error) {
	var tags []*models.Tag
	query := `SELECT * FROM tags ORDER BY name`
	if err := db.SelectContext(ctx, &tags, query); err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}

// RenameTag changes a tag's name
func (db *DB) RenameTag(ctx context.Context, id int64, name string) error {
	query := `UPDATE tags SET name = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, name, id)
	if err != nil {
		var sqlErr sqlite3.Error
		if errors.As(err, &sqlErr) && sqlErr.Code == sqlite3.ErrConstraint {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to rename tag: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTag deletes a tag; mailboxes referencing it fall back to untagged
func (db *DB) DeleteTag(ctx context.Context, id int64) error {
	query := `DELETE FROM tags WHERE id = ?`
	if _, err := db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	return nil
}
