package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dispomail/dispomail/internal/parser"
)

const (
	// pause before every API call to stay polite with the shared service
	apiCallPause = 500 * time.Millisecond

	apiListLimit     = 20
	apiDeleteRetries = 5
)

// tempAPIClient talks to a tempmail-plus style ephemeral mailbox service:
// list mails for an address, fetch one by id, delete by id. All calls are
// authenticated by the address plus a shared PIN.
type tempAPIClient struct {
	address    string
	baseURL    string
	pin        string
	httpClient *http.Client
	flattener  *parser.HTMLFlattener
	logger     *slog.Logger
}

func newTempAPIClient(cfg MailboxConfig, logger *slog.Logger) *tempAPIClient {
	timeout := cfg.EphemeralAPI.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &tempAPIClient{
		address:    cfg.Address,
		baseURL:    strings.TrimRight(cfg.EphemeralAPI.BaseURL, "/"),
		pin:        cfg.EphemeralAPI.PIN,
		httpClient: &http.Client{Timeout: timeout},
		flattener:  parser.NewHTMLFlattener(),
		logger:     logger.With("client", "tempapi"),
	}
}

type apiMailItem struct {
	MailID   int64  `json:"mail_id"`
	FromMail string `json:"from_mail"`
	Subject  string `json:"subject"`
	Time     string `json:"time"`
}

type apiMailList struct {
	Result   bool          `json:"result"`
	Count    int           `json:"count"`
	MailList []apiMailItem `json:"mail_list"`
}

type apiMailDetail struct {
	Result   bool   `json:"result"`
	FromMail string `json:"from_mail"`
	Text     string `json:"text"`
	HTML     string `json:"html"`
}

type apiResult struct {
	Result bool `json:"result"`
}

func (c *tempAPIClient) ListCandidates(ctx context.Context) ([]MessageRef, error) {
	if err := sleepCtx(ctx, apiCallPause); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/api/mails?email=%s&limit=%d&epin=%s",
		c.baseURL, url.QueryEscape(c.address), apiListLimit, url.QueryEscape(c.pin))

	var list apiMailList
	if err := c.getJSON(ctx, endpoint, &list); err != nil {
		return nil, err
	}
	if !list.Result {
		// the service answers result=false while the box is still empty;
		// that is "nothing yet", not an error
		return nil, nil
	}

	refs := make([]MessageRef, 0, len(list.MailList))
	for _, item := range list.MailList {
		date, _ := time.Parse("2006-01-02 15:04:05", item.Time)
		refs = append(refs, MessageRef{
			ID:   strconv.FormatInt(item.MailID, 10),
			From: item.FromMail,
			To:   c.address,
			Date: date,
		})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Date.After(refs[j].Date) })
	return refs, nil
}

func (c *tempAPIClient) FetchBody(ctx context.Context, ref MessageRef) (string, error) {
	if err := sleepCtx(ctx, apiCallPause); err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/api/mails/%s?email=%s&epin=%s",
		c.baseURL, url.PathEscape(ref.ID), url.QueryEscape(c.address), url.QueryEscape(c.pin))

	var detail apiMailDetail
	if err := c.getJSON(ctx, endpoint, &detail); err != nil {
		return "", err
	}
	if !detail.Result {
		// message vanished between list and fetch
		return "", nil
	}

	return chooseBody(detail.Text, detail.HTML, c.flattener), nil
}

// Acknowledge deletes the consumed message. The delete endpoint is flaky, so
// it is retried a few times with short pauses; the caller treats any
// remaining failure as non-fatal.
func (c *tempAPIClient) Acknowledge(ctx context.Context, ref MessageRef) error {
	var lastErr error
	for try := 1; try <= apiDeleteRetries; try++ {
		if err := sleepCtx(ctx, apiCallPause); err != nil {
			return err
		}
		if err := c.deleteMail(ctx, ref.ID); err != nil {
			c.logger.Debug("delete attempt failed", "message_id", ref.ID, "try", try, "error", err)
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("deleting message %s after %d tries: %w", ref.ID, apiDeleteRetries, lastErr)
}

func (c *tempAPIClient) Close() error { return nil }

func (c *tempAPIClient) deleteMail(ctx context.Context, id string) error {
	form := url.Values{
		"email": {c.address},
		"epin":  {c.pin},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/api/mails/"+url.PathEscape(id), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building delete request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending delete request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading delete response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("delete returned status %d: %s", resp.StatusCode, string(body))
	}

	var result apiResult
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("parsing delete response: %w", err)
	}
	if !result.Result {
		return fmt.Errorf("service refused to delete message %s", id)
	}
	return nil
}

func (c *tempAPIClient) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return authFailure(fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("API error: %s (status %d)", string(body), resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response: %w (body: %s)", err, string(body))
	}
	return nil
}
