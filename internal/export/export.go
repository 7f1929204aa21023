package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dispomail/dispomail/pkg/models"
)

var csvHeader = []string{"address", "status", "verify_code", "verify_method", "attempt_count", "created_at"}

// WriteCSV writes mailboxes as CSV with a header row.
func WriteCSV(w io.Writer, boxes []*models.Mailbox) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, mb := range boxes {
		record := []string{
			mb.Address,
			string(mb.Status),
			mb.VerifyCode,
			mb.VerifyMethod,
			strconv.Itoa(mb.AttemptCount),
			mb.CreatedAt.Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing csv record for %s: %w", mb.Address, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses mailboxes from CSV produced by WriteCSV. Unknown or missing
// columns beyond the address are tolerated so hand-written lists import too.
func ReadCSV(r io.Reader) ([]*models.Mailbox, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}

	var boxes []*models.Mailbox
	for i, record := range records {
		if len(record) == 0 || record[0] == "" {
			continue
		}
		if i == 0 && record[0] == csvHeader[0] {
			continue
		}

		mb := &models.Mailbox{Address: record[0]}
		if len(record) > 1 {
			mb.Status = models.VerificationStatus(record[1])
		}
		if len(record) > 2 {
			mb.VerifyCode = record[2]
		}
		if len(record) > 3 {
			mb.VerifyMethod = record[3]
		}
		if len(record) > 4 {
			if n, err := strconv.Atoi(record[4]); err == nil {
				mb.AttemptCount = n
			}
		}
		boxes = append(boxes, mb)
	}
	return boxes, nil
}

// mailboxJSON is the stable export shape; internal row ids stay private.
type mailboxJSON struct {
	PublicID     string     `json:"public_id,omitempty"`
	Address      string     `json:"address"`
	Status       string     `json:"status,omitempty"`
	VerifyCode   string     `json:"verify_code,omitempty"`
	VerifyMethod string     `json:"verify_method,omitempty"`
	AttemptCount int        `json:"attempt_count,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
}

// WriteJSON writes mailboxes as an indented JSON array.
func WriteJSON(w io.Writer, boxes []*models.Mailbox) error {
	out := make([]mailboxJSON, 0, len(boxes))
	for _, mb := range boxes {
		item := mailboxJSON{
			PublicID:     mb.PublicID,
			Address:      mb.Address,
			Status:       string(mb.Status),
			VerifyCode:   mb.VerifyCode,
			VerifyMethod: mb.VerifyMethod,
			AttemptCount: mb.AttemptCount,
		}
		if !mb.CreatedAt.IsZero() {
			created := mb.CreatedAt
			item.CreatedAt = &created
		}
		out = append(out, item)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("writing json: %w", err)
	}
	return nil
}

// ReadJSON parses mailboxes from a JSON array produced by WriteJSON.
func ReadJSON(r io.Reader) ([]*models.Mailbox, error) {
	var items []mailboxJSON
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("reading json: %w", err)
	}

	boxes := make([]*models.Mailbox, 0, len(items))
	for _, item := range items {
		if item.Address == "" {
			continue
		}
		mb := &models.Mailbox{
			PublicID:     item.PublicID,
			Address:      item.Address,
			Status:       models.VerificationStatus(item.Status),
			VerifyCode:   item.VerifyCode,
			VerifyMethod: item.VerifyMethod,
			AttemptCount: item.AttemptCount,
		}
		if item.CreatedAt != nil {
			mb.CreatedAt = *item.CreatedAt
		}
		boxes = append(boxes, mb)
	}
	return boxes, nil
}
