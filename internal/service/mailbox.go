package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dispomail/dispomail/internal/config"
	"github.com/dispomail/dispomail/internal/database"
	"github.com/dispomail/dispomail/pkg/models"
)

// name fragments used when no prefix is given, so generated addresses look
// like ordinary personal mailboxes
var namePrefixes = []string{
	"alex", "chris", "jamie", "jordan", "morgan", "riley", "sam", "taylor",
	"casey", "drew", "quinn", "avery",
}

// MailboxService owns mailbox lifecycle: address generation, tagging and
// deletion. Verification lives in VerificationService.
type MailboxService struct {
	db     *database.DB
	cfg    *config.Config
	logger *slog.Logger
}

// NewMailboxService creates a new mailbox service
func NewMailboxService(db *database.DB, cfg *config.Config, logger *slog.Logger) *MailboxService {
	return &MailboxService{
		db:     db,
		cfg:    cfg,
		logger: logger.With("component", "mailbox_service"),
	}
}

// Generate composes a fresh disposable address under the configured domain
// and stores it as a pending mailbox. An optional tag is resolved by name and
// created if missing.
func (s *MailboxService) Generate(ctx context.Context, prefix, tagName string) (*models.Mailbox, error) {
	local, err := composeLocalPart(prefix)
	if err != nil {
		return nil, err
	}

	mb := &models.Mailbox{
		PublicID: uuid.NewString(),
		Address:  local + "@" + s.cfg.MailDomain,
		Status:   models.StatusPending,
	}

	if tagName != "" {
		tag, err := s.resolveTag(ctx, tagName)
		if err != nil {
			return nil, err
		}
		mb.TagID = &tag.ID
	}

	if err := s.db.CreateMailbox(ctx, mb); err != nil {
		return nil, fmt.Errorf("storing mailbox %s: %w", mb.Address, err)
	}

	s.logger.Info("mailbox generated", "address", mb.Address, "tag", tagName)
	return mb, nil
}

// Import stores externally produced mailbox records, skipping addresses that
// already exist. It returns how many records were added and skipped.
func (s *MailboxService) Import(ctx context.Context, boxes []*models.Mailbox) (added, skipped int, err error) {
	for _, mb := range boxes {
		if mb.PublicID == "" {
			mb.PublicID = uuid.NewString()
		}
		if mb.Status == "" {
			mb.Status = models.StatusPending
		}
		switch err := s.db.CreateMailbox(ctx, mb); {
		case err == nil:
			added++
		case err == database.ErrAlreadyExists:
			skipped++
		default:
			return added, skipped, fmt.Errorf("importing %s: %w", mb.Address, err)
		}
	}
	return added, skipped, nil
}

// Tag assigns a tag (created if missing) to a mailbox by address. An empty
// tag name clears the assignment.
func (s *MailboxService) Tag(ctx context.Context, address, tagName string) error {
	mb, err := s.db.GetMailboxByAddress(ctx, address)
	if err != nil {
		return fmt.Errorf("loading mailbox %s: %w", address, err)
	}

	if tagName == "" {
		return s.db.SetMailboxTag(ctx, mb.ID, nil)
	}

	tag, err := s.resolveTag(ctx, tagName)
	if err != nil {
		return err
	}
	return s.db.SetMailboxTag(ctx, mb.ID, &tag.ID)
}

func (s *MailboxService) resolveTag(ctx context.Context, name string) (*models.Tag, error) {
	tag, err := s.db.GetTagByName(ctx, name)
	if err == nil {
		return tag, nil
	}
	if err != database.ErrNotFound {
		return nil, fmt.Errorf("looking up tag %s: %w", name, err)
	}

	tag = &models.Tag{Name: name}
	if err := s.db.CreateTag(ctx, tag); err != nil {
		if err == database.ErrAlreadyExists {
			return s.db.GetTagByName(ctx, name)
		}
		return nil, fmt.Errorf("creating tag %s: %w", name, err)
	}
	return tag, nil
}

// composeLocalPart builds a local part from a name fragment, a random
// string and timestamp digits.
func composeLocalPart(prefix string) (string, error) {
	if prefix == "" {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(namePrefixes))))
		if err != nil {
			return "", fmt.Errorf("picking name prefix: %w", err)
		}
		prefix = namePrefixes[n.Int64()]
	}

	suffix, err := randomString(4)
	if err != nil {
		return "", err
	}

	stamp := time.Now().Unix() % 100000
	return fmt.Sprintf("%s%s%d", strings.ToLower(prefix), suffix, stamp), nil
}

func randomString(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"

	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		out[i] = charset[n.Int64()]
	}
	return string(out), nil
}
