package verifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// MessageRef identifies one candidate message on a backend. ID is
// backend-specific: an IMAP UID, a POP3 message number or an API mail id.
type MessageRef struct {
	ID   string
	From string
	To   string
	Date time.Time
}

// ProtocolClient is the capability each backend must provide. Implementations
// hold a transport connection and are not safe for concurrent use; one client
// serves one in-flight verification call.
type ProtocolClient interface {
	// ListCandidates returns likely-relevant messages for the mailbox,
	// newest first. Where the backend supports server-side filtering the
	// result is already narrowed to the target recipient.
	ListCandidates(ctx context.Context) ([]MessageRef, error)

	// FetchBody returns the plain-text rendition of the message body.
	FetchBody(ctx context.Context, ref MessageRef) (string, error)

	// Acknowledge consumes the message the code was read from: delete for
	// the ephemeral API and IMAP, a policy-controlled no-op for POP3.
	Acknowledge(ctx context.Context, ref MessageRef) error

	// Close releases the transport connection.
	Close() error
}

// ClientFactory builds a ProtocolClient for a validated MailboxConfig.
type ClientFactory func(cfg MailboxConfig, logger *slog.Logger) (ProtocolClient, error)

func newProtocolClient(cfg MailboxConfig, logger *slog.Logger) (ProtocolClient, error) {
	switch cfg.Backend {
	case BackendEphemeralAPI:
		return newTempAPIClient(cfg, logger), nil
	case BackendIMAP:
		return newIMAPClient(cfg, logger), nil
	case BackendPOP3:
		return newPOP3Client(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported backend kind %q", cfg.Backend)
	}
}

// sleepCtx waits for d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
