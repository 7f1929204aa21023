package verifier

import (
	"fmt"
	"strings"
	"time"
)

// BackendKind selects which mail backend a mailbox is reached through.
type BackendKind string

const (
	BackendEphemeralAPI BackendKind = "tempapi"
	BackendIMAP         BackendKind = "imap"
	BackendPOP3         BackendKind = "pop3"
)

// EphemeralAPIConfig describes an ephemeral-mailbox HTTP API backend.
type EphemeralAPIConfig struct {
	BaseURL string        // e.g. https://tempmail.plus
	PIN     string        // shared secret the API calls it "epin"
	Timeout time.Duration // per-request timeout
}

// IMAPConfig describes an IMAP mailbox backend.
type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
	Folder   string // defaults to INBOX
	Timeout  time.Duration
}

// POP3Config describes a POP3 mailbox backend.
type POP3Config struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
	Timeout  time.Duration

	// ExpectedSender, when set, restricts candidates to messages whose From
	// address contains this substring. POP3 has no server-side filtering, so
	// this is the only way to narrow a busy mailbox down.
	ExpectedSender string

	// DeleteAfterRead controls whether Acknowledge issues DELE. Leaving mail
	// on the server is valid POP3 policy, so the default is to keep it.
	DeleteAfterRead bool
}

// MailboxConfig is the immutable input describing how to reach the backend
// of one mailbox address. Exactly one backend section must be populated, and
// it must match Backend.
type MailboxConfig struct {
	Backend BackendKind
	Address string

	EphemeralAPI *EphemeralAPIConfig
	IMAP         *IMAPConfig
	POP3         *POP3Config
}

// Validate rejects configs whose populated sections do not match the declared
// backend kind. It runs before any network call.
func (c *MailboxConfig) Validate() error {
	if c.Address == "" || !strings.Contains(c.Address, "@") {
		return fmt.Errorf("mailbox address %q is not a valid email address", c.Address)
	}

	switch c.Backend {
	case BackendEphemeralAPI:
		if c.EphemeralAPI == nil {
			return fmt.Errorf("backend %s requires ephemeral API settings", c.Backend)
		}
		if c.IMAP != nil || c.POP3 != nil {
			return fmt.Errorf("backend %s must not carry IMAP or POP3 settings", c.Backend)
		}
		if c.EphemeralAPI.BaseURL == "" {
			return fmt.Errorf("backend %s requires a base URL", c.Backend)
		}
	case BackendIMAP:
		if c.IMAP == nil {
			return fmt.Errorf("backend %s requires IMAP settings", c.Backend)
		}
		if c.EphemeralAPI != nil || c.POP3 != nil {
			return fmt.Errorf("backend %s must not carry ephemeral API or POP3 settings", c.Backend)
		}
		if c.IMAP.Host == "" || c.IMAP.Username == "" {
			return fmt.Errorf("backend %s requires host and username", c.Backend)
		}
	case BackendPOP3:
		if c.POP3 == nil {
			return fmt.Errorf("backend %s requires POP3 settings", c.Backend)
		}
		if c.EphemeralAPI != nil || c.IMAP != nil {
			return fmt.Errorf("backend %s must not carry ephemeral API or IMAP settings", c.Backend)
		}
		if c.POP3.Host == "" || c.POP3.Username == "" {
			return fmt.Errorf("backend %s requires host and username", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend kind %q", c.Backend)
	}

	return nil
}
