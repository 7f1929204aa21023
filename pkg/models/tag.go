package models

import "time"

// Tag groups mailboxes for bookkeeping
type Tag struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Color     string    `db:"color"` // hex color for UI layers, e.g. #ff8800
	CreatedAt time.Time `db:"created_at"`
}
