package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dispomail/dispomail/internal/config"
	"github.com/dispomail/dispomail/internal/database"
	"github.com/dispomail/dispomail/internal/verifier"
	"github.com/dispomail/dispomail/pkg/models"
)

// CodeRetriever is the engine capability the service drives. Satisfied by
// *verifier.Verifier; tests substitute a fake.
type CodeRetriever interface {
	VerifyMailbox(ctx context.Context, cfg verifier.MailboxConfig, req verifier.VerificationRequest) (verifier.Outcome, error)
}

// VerificationService owns the verification state machine around the engine:
// it builds the backend config for a mailbox, runs the engine synchronously
// and persists the resulting status and attempt count. The engine itself
// never touches a stored record.
type VerificationService struct {
	db     *database.DB
	cfg    *config.Config
	engine CodeRetriever
	logger *slog.Logger
}

// NewVerificationService creates a new verification service
func NewVerificationService(db *database.DB, cfg *config.Config, logger *slog.Logger) *VerificationService {
	return &VerificationService{
		db:     db,
		cfg:    cfg,
		engine: verifier.New(logger),
		logger: logger.With("component", "verification_service"),
	}
}

// Verify runs one full verification cycle for the mailbox with the given
// address and persists the outcome. Re-verifying an already verified mailbox
// is permitted and simply runs the engine again.
func (s *VerificationService) Verify(ctx context.Context, address string) (*models.Mailbox, verifier.Outcome, error) {
	mb, err := s.db.GetMailboxByAddress(ctx, address)
	if err != nil {
		return nil, verifier.Outcome{}, fmt.Errorf("loading mailbox %s: %w", address, err)
	}

	vcfg, err := s.buildConfig(mb)
	if err != nil {
		return nil, verifier.Outcome{}, err
	}

	req := verifier.VerificationRequest{
		MaxAttempts:     s.cfg.VerifyMaxAttempts,
		AttemptInterval: s.cfg.VerifyInterval,
		InnerPollDelay:  s.cfg.VerifyPollDelay,
		InnerPollLimit:  s.cfg.VerifyPollLimit,
	}

	outcome, err := s.engine.VerifyMailbox(ctx, vcfg, req)
	if err != nil {
		return nil, outcome, err
	}

	if err := s.apply(ctx, mb, outcome); err != nil {
		return mb, outcome, err
	}
	return mb, outcome, nil
}

// apply advances the mailbox status from the outcome. A captured code moves
// the mailbox to verified; any failure except cancellation moves it to
// failed. Both transitions count an attempt. A user abort is not an attempt
// and leaves the record untouched.
func (s *VerificationService) apply(ctx context.Context, mb *models.Mailbox, outcome verifier.Outcome) error {
	if outcome.FailureReason == verifier.FailureCancelled {
		return nil
	}

	now := time.Now()
	if outcome.Found() {
		mb.Status = models.StatusVerified
		mb.VerifyCode = outcome.Code
		mb.VerifyMethod = s.cfg.VerifyMethod
	} else {
		mb.Status = models.StatusFailed
	}
	mb.AttemptCount++
	mb.LastAttemptAt = &now

	if err := s.db.UpdateMailboxVerification(ctx, mb); err != nil {
		return fmt.Errorf("persisting verification result: %w", err)
	}
	s.logger.Info("mailbox status updated",
		"address", mb.Address, "status", string(mb.Status), "attempts", mb.AttemptCount)
	return nil
}

// ExpireStale moves mailboxes that exhausted the configured attempt budget
// or outlived the configured age to expired. This is caller policy; the
// engine never expires anything.
func (s *VerificationService) ExpireStale(ctx context.Context, maxAttempts int, maxAge time.Duration) (int, error) {
	boxes, err := s.db.ListMailboxes(ctx, database.MailboxFilter{})
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, mb := range boxes {
		if mb.IsTerminal() {
			continue
		}
		tooOld := maxAge > 0 && time.Since(mb.CreatedAt) > maxAge
		tooManyAttempts := maxAttempts > 0 && mb.AttemptCount >= maxAttempts
		if !tooOld && !tooManyAttempts {
			continue
		}

		mb.Status = models.StatusExpired
		if err := s.db.UpdateMailboxVerification(ctx, mb); err != nil {
			return expired, err
		}
		s.logger.Info("mailbox expired",
			"address", mb.Address, "attempts", mb.AttemptCount, "age", time.Since(mb.CreatedAt).Round(time.Minute))
		expired++
	}
	return expired, nil
}

// buildConfig assembles the engine input from the stored app configuration.
// Credentials are handed to the engine per call and never cached by it.
func (s *VerificationService) buildConfig(mb *models.Mailbox) (verifier.MailboxConfig, error) {
	switch s.cfg.VerifyMethod {
	case "tempapi":
		return verifier.MailboxConfig{
			Backend: verifier.BackendEphemeralAPI,
			Address: mb.Address,
			EphemeralAPI: &verifier.EphemeralAPIConfig{
				BaseURL: s.cfg.TempAPIBaseURL,
				PIN:     s.cfg.TempAPIPin,
				Timeout: s.cfg.TempAPITimeout,
			},
		}, nil
	case "imap":
		return verifier.MailboxConfig{
			Backend: verifier.BackendIMAP,
			Address: mb.Address,
			IMAP: &verifier.IMAPConfig{
				Host:     s.cfg.IMAPHost,
				Port:     s.cfg.IMAPPort,
				Username: s.cfg.IMAPUsername,
				Password: s.cfg.IMAPPassword,
				UseTLS:   s.cfg.IMAPUseTLS,
				Folder:   s.cfg.IMAPFolder,
				Timeout:  s.cfg.IMAPTimeout,
			},
		}, nil
	case "pop3":
		return verifier.MailboxConfig{
			Backend: verifier.BackendPOP3,
			Address: mb.Address,
			POP3: &verifier.POP3Config{
				Host:            s.cfg.POP3Host,
				Port:            s.cfg.POP3Port,
				Username:        s.cfg.POP3Username,
				Password:        s.cfg.POP3Password,
				UseTLS:          s.cfg.POP3UseTLS,
				Timeout:         s.cfg.POP3Timeout,
				ExpectedSender:  s.cfg.POP3ExpectedSender,
				DeleteAfterRead: s.cfg.POP3DeleteAfterRead,
			},
		}, nil
	default:
		return verifier.MailboxConfig{}, fmt.Errorf("unknown verify method %q", s.cfg.VerifyMethod)
	}
}
