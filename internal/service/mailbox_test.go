package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispomail/dispomail/pkg/models"
)

func TestGenerateMailbox(t *testing.T) {
	db := testDB(t)
	svc := NewMailboxService(db, testAppConfig(), testLogger())

	mb, err := svc.Generate(context.Background(), "shop", "shopping")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(mb.Address, "shop"))
	assert.True(t, strings.HasSuffix(mb.Address, "@example.com"))
	assert.Equal(t, models.StatusPending, mb.Status)
	assert.NotEmpty(t, mb.PublicID)
	require.NotNil(t, mb.TagID)

	tag, err := db.GetTagByName(context.Background(), "shopping")
	require.NoError(t, err)
	assert.Equal(t, tag.ID, *mb.TagID)
}

func TestGenerateMailboxesAreDistinct(t *testing.T) {
	db := testDB(t)
	svc := NewMailboxService(db, testAppConfig(), testLogger())

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		mb, err := svc.Generate(context.Background(), "", "")
		require.NoError(t, err)
		assert.False(t, seen[mb.Address], "generated duplicate address %s", mb.Address)
		seen[mb.Address] = true
	}
}

func TestImportSkipsDuplicates(t *testing.T) {
	db := testDB(t)
	svc := NewMailboxService(db, testAppConfig(), testLogger())

	seedMailbox(t, db, "existing@example.com")

	added, skipped, err := svc.Import(context.Background(), []*models.Mailbox{
		{Address: "existing@example.com"},
		{Address: "new@example.com", Status: models.StatusVerified, VerifyCode: "482913"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, skipped)

	stored, err := db.GetMailboxByAddress(context.Background(), "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, stored.Status)
	assert.NotEmpty(t, stored.PublicID, "import backfills the public id")
}

func TestTagAssignAndClear(t *testing.T) {
	db := testDB(t)
	svc := NewMailboxService(db, testAppConfig(), testLogger())
	ctx := context.Background()

	seedMailbox(t, db, "box@example.com")

	require.NoError(t, svc.Tag(ctx, "box@example.com", "work"))
	stored, err := db.GetMailboxByAddress(ctx, "box@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored.TagID)

	require.NoError(t, svc.Tag(ctx, "box@example.com", ""))
	stored, err = db.GetMailboxByAddress(ctx, "box@example.com")
	require.NoError(t, err)
	assert.Nil(t, stored.TagID)
}
