package verifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dispomail/dispomail/internal/parser"
)

// Defaults preserved from observed backend latency characteristics: the
// outer loop backs off coarsely while the inner poll absorbs sub-minute
// delivery latency without consuming an outer attempt.
const (
	DefaultMaxAttempts     = 5
	DefaultAttemptInterval = 60 * time.Second
	DefaultInnerPollDelay  = 3 * time.Second
	DefaultInnerPollLimit  = 20

	ackTimeout = 15 * time.Second
)

// VerificationRequest carries the per-call retry parameters. The outer
// attempt loop and the inner poll loop are two independent bounds.
type VerificationRequest struct {
	MaxAttempts     int
	AttemptInterval time.Duration
	InnerPollDelay  time.Duration
	InnerPollLimit  int
}

func (r *VerificationRequest) applyDefaults() {
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = DefaultMaxAttempts
	}
	if r.AttemptInterval <= 0 {
		r.AttemptInterval = DefaultAttemptInterval
	}
	if r.InnerPollDelay <= 0 {
		r.InnerPollDelay = DefaultInnerPollDelay
	}
	if r.InnerPollLimit <= 0 {
		r.InnerPollLimit = DefaultInnerPollLimit
	}
}

// Verifier retrieves verification codes from mail backends. It owns no
// persistent state; credentials live only inside the MailboxConfig for the
// duration of a call.
type Verifier struct {
	logger    *slog.Logger
	extractor *parser.Extractor
	newClient ClientFactory
}

// New creates a new verifier
func New(logger *slog.Logger) *Verifier {
	return &Verifier{
		logger:    logger.With("component", "verifier"),
		extractor: parser.NewExtractor(),
		newClient: newProtocolClient,
	}
}

// VerifyMailbox runs the full bounded retry loop against the configured
// backend and returns the outcome. The returned error is non-nil only for an
// invalid config; every runtime condition is folded into the outcome's
// failure reason.
func (v *Verifier) VerifyMailbox(ctx context.Context, cfg MailboxConfig, req VerificationRequest) (Outcome, error) {
	if err := cfg.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("invalid mailbox config: %w", err)
	}
	req.applyDefaults()

	client, err := v.newClient(cfg, v.logger)
	if err != nil {
		return Outcome{}, err
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			v.logger.Debug("closing protocol client", "error", cerr)
		}
	}()

	log := v.logger.With("address", cfg.Address, "backend", string(cfg.Backend))

	var lastErr error
	for attempt := 1; attempt <= req.MaxAttempts; attempt++ {
		outcome, err := v.runAttempt(ctx, client, cfg, req, log)
		if outcome.Found() {
			log.Info("verification code retrieved",
				"attempt", attempt, "message_id", outcome.ConsumedMessageID)
			return outcome, nil
		}

		if err != nil {
			if errors.Is(err, ErrAuthFailed) {
				log.Warn("credentials rejected, aborting remaining attempts",
					"attempt", attempt, "error", err)
				return Outcome{FailureReason: FailureAuth}, nil
			}
			if ctx.Err() != nil {
				log.Info("verification cancelled", "attempt", attempt)
				return Outcome{FailureReason: FailureCancelled}, nil
			}
			log.Warn("attempt failed", "attempt", attempt, "error", err)
			lastErr = err
		} else {
			log.Info("no code found yet", "attempt", attempt, "max_attempts", req.MaxAttempts)
			lastErr = nil
		}

		if attempt == req.MaxAttempts {
			break
		}
		if err := sleepCtx(ctx, req.AttemptInterval); err != nil {
			log.Info("verification cancelled during backoff", "attempt", attempt)
			return Outcome{FailureReason: FailureCancelled}, nil
		}
	}

	if lastErr != nil {
		// a transport error becomes the terminating reason only when the
		// final attempt itself failed with it
		return Outcome{FailureReason: classify(lastErr)}, nil
	}
	return Outcome{FailureReason: FailureNotFound}, nil
}

// runAttempt performs one outer attempt: poll for candidates, then walk them
// newest-first until a body yields a code.
func (v *Verifier) runAttempt(ctx context.Context, client ProtocolClient, cfg MailboxConfig, req VerificationRequest, log *slog.Logger) (Outcome, error) {
	refs, err := v.pollCandidates(ctx, client, req, log)
	if err != nil {
		return Outcome{}, err
	}

	for _, ref := range refs {
		body, err := client.FetchBody(ctx, ref)
		if err != nil {
			if errors.Is(err, ErrAuthFailed) || ctx.Err() != nil {
				return Outcome{}, err
			}
			// malformed message; move on to the next candidate
			log.Warn("fetching message body", "message_id", ref.ID, "error", err)
			continue
		}

		code, ok := v.extractor.Extract(body, cfg.Address)
		if !ok {
			continue
		}

		outcome := Outcome{Code: code, ConsumedMessageID: ref.ID}
		v.acknowledge(client, ref, log)
		return outcome, nil
	}

	return Outcome{}, nil
}

// pollCandidates lists candidates, absorbing mail-delivery latency with a
// short fixed delay for up to InnerPollLimit tries before reporting an empty
// mailbox back to the outer loop.
func (v *Verifier) pollCandidates(ctx context.Context, client ProtocolClient, req VerificationRequest, log *slog.Logger) ([]MessageRef, error) {
	for poll := 1; ; poll++ {
		refs, err := client.ListCandidates(ctx)
		if err != nil {
			return nil, err
		}
		if len(refs) > 0 {
			return refs, nil
		}
		if poll >= req.InnerPollLimit {
			return nil, nil
		}
		log.Debug("mailbox still empty", "poll", poll, "poll_limit", req.InnerPollLimit)
		if err := sleepCtx(ctx, req.InnerPollDelay); err != nil {
			return nil, err
		}
	}
}

// acknowledge consumes the message best-effort. It runs on its own detached
// context so that cancelling the call after a code was already extracted
// still lets cleanup finish, and a cleanup failure never discards the code.
func (v *Verifier) acknowledge(client ProtocolClient, ref MessageRef, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
	defer cancel()

	if err := client.Acknowledge(ctx, ref); err != nil {
		log.Warn("cleanup failed, keeping code", "message_id", ref.ID, "error", err)
	}
}
