package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispomail/dispomail/internal/config"
	"github.com/dispomail/dispomail/internal/database"
	"github.com/dispomail/dispomail/internal/verifier"
	"github.com/dispomail/dispomail/pkg/models"
)

// fakeEngine returns a scripted outcome instead of touching the network.
type fakeEngine struct {
	outcome verifier.Outcome
	calls   int
	lastCfg verifier.MailboxConfig
}

func (f *fakeEngine) VerifyMailbox(ctx context.Context, cfg verifier.MailboxConfig, req verifier.VerificationRequest) (verifier.Outcome, error) {
	f.calls++
	f.lastCfg = cfg
	return f.outcome, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func testAppConfig() *config.Config {
	return &config.Config{
		MailDomain:        "example.com",
		VerifyMethod:      "tempapi",
		TempAPIBaseURL:    "https://mail.invalid",
		VerifyMaxAttempts: 5,
		VerifyInterval:    time.Minute,
		VerifyPollDelay:   3 * time.Second,
		VerifyPollLimit:   20,
	}
}

func seedMailbox(t *testing.T, db *database.DB, address string) *models.Mailbox {
	t.Helper()
	mb := &models.Mailbox{
		PublicID: uuid.NewString(),
		Address:  address,
		Status:   models.StatusPending,
	}
	require.NoError(t, db.CreateMailbox(context.Background(), mb))
	return mb
}

func TestVerifyTransitionsToVerified(t *testing.T) {
	db := testDB(t)
	seedMailbox(t, db, "box@example.com")

	svc := NewVerificationService(db, testAppConfig(), testLogger())
	engine := &fakeEngine{outcome: verifier.Outcome{Code: "482913", ConsumedMessageID: "7"}}
	svc.engine = engine

	mb, outcome, err := svc.Verify(context.Background(), "box@example.com")
	require.NoError(t, err)
	require.True(t, outcome.Found())

	assert.Equal(t, models.StatusVerified, mb.Status)
	assert.Equal(t, "482913", mb.VerifyCode)
	assert.Equal(t, "tempapi", mb.VerifyMethod)
	assert.Equal(t, 1, mb.AttemptCount)
	require.NotNil(t, mb.LastAttemptAt)

	stored, err := db.GetMailboxByAddress(context.Background(), "box@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, stored.Status)
	assert.Equal(t, "482913", stored.VerifyCode)
	assert.Equal(t, 1, stored.AttemptCount)
}

func TestVerifyTransitionsToFailed(t *testing.T) {
	db := testDB(t)
	seedMailbox(t, db, "box@example.com")

	svc := NewVerificationService(db, testAppConfig(), testLogger())
	svc.engine = &fakeEngine{outcome: verifier.Outcome{FailureReason: verifier.FailureNotFound}}

	mb, outcome, err := svc.Verify(context.Background(), "box@example.com")
	require.NoError(t, err)
	assert.False(t, outcome.Found())
	assert.Equal(t, models.StatusFailed, mb.Status)
	assert.Equal(t, 1, mb.AttemptCount)
}

func TestVerifyCancelledLeavesRecordUntouched(t *testing.T) {
	db := testDB(t)
	seedMailbox(t, db, "box@example.com")

	svc := NewVerificationService(db, testAppConfig(), testLogger())
	svc.engine = &fakeEngine{outcome: verifier.Outcome{FailureReason: verifier.FailureCancelled}}

	_, _, err := svc.Verify(context.Background(), "box@example.com")
	require.NoError(t, err)

	stored, err := db.GetMailboxByAddress(context.Background(), "box@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, 0, stored.AttemptCount, "a user abort is not a verification attempt")
	assert.Nil(t, stored.LastAttemptAt)
}

func TestVerifyAgainAfterVerifiedIsIdempotent(t *testing.T) {
	db := testDB(t)
	seedMailbox(t, db, "box@example.com")

	svc := NewVerificationService(db, testAppConfig(), testLogger())
	engine := &fakeEngine{outcome: verifier.Outcome{Code: "111222"}}
	svc.engine = engine

	_, _, err := svc.Verify(context.Background(), "box@example.com")
	require.NoError(t, err)

	engine.outcome = verifier.Outcome{Code: "333444"}
	mb, _, err := svc.Verify(context.Background(), "box@example.com")
	require.NoError(t, err)

	assert.Equal(t, models.StatusVerified, mb.Status)
	assert.Equal(t, "333444", mb.VerifyCode, "re-verification stores the fresh code")
	assert.Equal(t, 2, mb.AttemptCount)
	assert.Equal(t, 2, engine.calls)
}

func TestVerifyBuildsBackendConfigFromSettings(t *testing.T) {
	db := testDB(t)
	seedMailbox(t, db, "box@163.com")

	cfg := testAppConfig()
	cfg.VerifyMethod = "imap"
	cfg.IMAPHost = "imap.163.com"
	cfg.IMAPUsername = "box@163.com"
	cfg.IMAPPassword = "secret"

	svc := NewVerificationService(db, cfg, testLogger())
	engine := &fakeEngine{outcome: verifier.Outcome{FailureReason: verifier.FailureNotFound}}
	svc.engine = engine

	_, _, err := svc.Verify(context.Background(), "box@163.com")
	require.NoError(t, err)

	assert.Equal(t, verifier.BackendIMAP, engine.lastCfg.Backend)
	assert.Equal(t, "box@163.com", engine.lastCfg.Address)
	require.NotNil(t, engine.lastCfg.IMAP)
	assert.Equal(t, "imap.163.com", engine.lastCfg.IMAP.Host)
	assert.Nil(t, engine.lastCfg.EphemeralAPI)
	assert.Nil(t, engine.lastCfg.POP3)
}

func TestExpireStale(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	exhausted := seedMailbox(t, db, "exhausted@example.com")
	exhausted.Status = models.StatusFailed
	exhausted.AttemptCount = 15
	require.NoError(t, db.UpdateMailboxVerification(ctx, exhausted))

	verified := seedMailbox(t, db, "verified@example.com")
	verified.Status = models.StatusVerified
	verified.VerifyCode = "482913"
	require.NoError(t, db.UpdateMailboxVerification(ctx, verified))

	seedMailbox(t, db, "fresh@example.com")

	svc := NewVerificationService(db, testAppConfig(), testLogger())
	expired, err := svc.ExpireStale(ctx, 15, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	stored, err := db.GetMailboxByAddress(ctx, "exhausted@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, stored.Status)

	stored, err = db.GetMailboxByAddress(ctx, "verified@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, stored.Status, "terminal mailboxes never expire")

	stored, err = db.GetMailboxByAddress(ctx, "fresh@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}
