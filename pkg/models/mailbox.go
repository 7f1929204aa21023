package models

import "time"

// VerificationStatus is the lifecycle state of a mailbox's verification.
type VerificationStatus string

const (
	StatusPending  VerificationStatus = "pending"
	StatusVerified VerificationStatus = "verified"
	StatusFailed   VerificationStatus = "failed"
	StatusExpired  VerificationStatus = "expired"
)

// Mailbox represents a disposable email address under management
type Mailbox struct {
	ID            int64              `db:"id"`
	PublicID      string             `db:"public_id"`      // UUID exposed to exports
	Address       string             `db:"address"`        // full email address
	Status        VerificationStatus `db:"status"`         // verification lifecycle state
	VerifyCode    string             `db:"verify_code"`    // extracted 6-digit code, if verified
	VerifyMethod  string             `db:"verify_method"`  // backend used: tempapi, imap, pop3
	AttemptCount  int                `db:"attempt_count"`  // completed verification attempts
	LastAttemptAt *time.Time         `db:"last_attempt_at"`
	TagID         *int64             `db:"tag_id"`
	CreatedAt     time.Time          `db:"created_at"`
	UpdatedAt     time.Time          `db:"updated_at"`
}

// IsTerminal reports whether the mailbox has reached a state the
// verification service will not advance further on its own.
func (m *Mailbox) IsTerminal() bool {
	return m.Status == StatusVerified || m.Status == StatusExpired
}

// Statistics is an aggregate view over all managed mailboxes.
type Statistics struct {
	Total    int `db:"total"`
	Pending  int `db:"pending"`
	Verified int `db:"verified"`
	Failed   int `db:"failed"`
	Expired  int `db:"expired"`
	Tagged   int `db:"tagged"`
}
