package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispomail/dispomail/pkg/models"
)

func sampleBoxes() []*models.Mailbox {
	return []*models.Mailbox{
		{
			PublicID:     "6c7e1f9a-0000-0000-0000-000000000001",
			Address:      "alex1234@example.com",
			Status:       models.StatusVerified,
			VerifyCode:   "482913",
			VerifyMethod: "imap",
			AttemptCount: 2,
			CreatedAt:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			PublicID:  "6c7e1f9a-0000-0000-0000-000000000002",
			Address:   "sam9876@example.com",
			Status:    models.StatusPending,
			CreatedAt: time.Date(2026, 8, 2, 9, 30, 0, 0, time.UTC),
		},
	}
}

func TestCSVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleBoxes()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3, "header plus two records")
	assert.Equal(t, "address,status,verify_code,verify_method,attempt_count,created_at", lines[0])

	boxes, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, boxes, 2)
	assert.Equal(t, "alex1234@example.com", boxes[0].Address)
	assert.Equal(t, models.StatusVerified, boxes[0].Status)
	assert.Equal(t, "482913", boxes[0].VerifyCode)
	assert.Equal(t, 2, boxes[0].AttemptCount)
	assert.Equal(t, models.StatusPending, boxes[1].Status)
}

func TestReadCSVAddressOnlyList(t *testing.T) {
	in := strings.NewReader("one@example.com\ntwo@example.com\n")
	boxes, err := ReadCSV(in)
	require.NoError(t, err)
	require.Len(t, boxes, 2)
	assert.Equal(t, "one@example.com", boxes[0].Address)
	assert.Empty(t, boxes[0].VerifyCode)
}

func TestJSONRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleBoxes()))

	boxes, err := ReadJSON(&buf)
	require.NoError(t, err)
	require.Len(t, boxes, 2)
	assert.Equal(t, "alex1234@example.com", boxes[0].Address)
	assert.Equal(t, "482913", boxes[0].VerifyCode)
	assert.Equal(t, "imap", boxes[0].VerifyMethod)
	assert.Equal(t, sampleBoxes()[0].CreatedAt, boxes[0].CreatedAt)
}

func TestReadJSONSkipsEmptyAddresses(t *testing.T) {
	in := strings.NewReader(`[{"address": ""}, {"address": "kept@example.com"}]`)
	boxes, err := ReadJSON(in)
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.Equal(t, "kept@example.com", boxes[0].Address)
}
