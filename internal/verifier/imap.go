package verifier

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	id "github.com/emersion/go-imap-id"

	"github.com/dispomail/dispomail/internal/parser"
)

// imapCandidateLimit caps how many matching messages one attempt inspects.
const imapCandidateLimit = 10

// imapSearchStrategy selects how candidate messages are found on the server.
type imapSearchStrategy int

const (
	// searchByRecipient asks the server for messages addressed to the
	// mailbox directly.
	searchByRecipient imapSearchStrategy = iota

	// searchByDateUnseen searches by date and unseen flag, then re-checks
	// the To header locally. Used for providers whose recipient search is
	// unreliable and which expect an RFC 2971 ID handshake after login.
	searchByDateUnseen
)

// Providers that need the date+unseen strategy, matched by address suffix.
// Extend this table rather than branching inside the client.
var dateSearchSuffixes = []string{
	"@163.com",
	"@126.com",
	"@yeah.net",
	"@188.com",
}

func strategyForAddress(address string) imapSearchStrategy {
	lower := strings.ToLower(address)
	for _, suffix := range dateSearchSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return searchByDateUnseen
		}
	}
	return searchByRecipient
}

// imapClient reads a shared or dedicated IMAP mailbox. The connection is
// opened lazily on the first call and held until Close.
type imapClient struct {
	address   string
	cfg       IMAPConfig
	strategy  imapSearchStrategy
	flattener *parser.HTMLFlattener
	logger    *slog.Logger

	conn *client.Client
}

func newIMAPClient(cfg MailboxConfig, logger *slog.Logger) *imapClient {
	return &imapClient{
		address:   cfg.Address,
		cfg:       *cfg.IMAP,
		strategy:  strategyForAddress(cfg.Address),
		flattener: parser.NewHTMLFlattener(),
		logger:    logger.With("client", "imap"),
	}
}

func (c *imapClient) connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	port := c.cfg.Port
	if port == 0 {
		port = 993
	}
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: timeout}

	var (
		conn *client.Client
		err  error
	)
	if c.cfg.UseTLS {
		conn, err = client.DialWithDialerTLS(dialer, addr, nil)
	} else {
		conn, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := conn.Login(c.cfg.Username, c.cfg.Password); err != nil {
		conn.Logout()
		return authFailure(fmt.Errorf("login as %s: %v", c.cfg.Username, err))
	}

	if c.strategy == searchByDateUnseen {
		// these providers reject SEARCH from clients that skip the ID
		// handshake
		idClient := id.NewClient(conn)
		if _, err := idClient.ID(id.ID{
			id.FieldName:    "dispomail",
			id.FieldVersion: "1.0",
		}); err != nil {
			c.logger.Debug("ID handshake failed", "error", err)
		}
	}

	folder := c.cfg.Folder
	if folder == "" {
		folder = "INBOX"
	}
	if _, err := conn.Select(folder, false); err != nil {
		conn.Logout()
		return fmt.Errorf("selecting folder %s: %w", folder, err)
	}

	c.conn = conn
	return nil
}

func (c *imapClient) ListCandidates(ctx context.Context) ([]MessageRef, error) {
	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	switch c.strategy {
	case searchByRecipient:
		criteria.Header.Add("To", c.address)
	case searchByDateUnseen:
		criteria.Since = time.Now().AddDate(0, 0, -1)
		criteria.WithoutFlags = []string{imap.SeenFlag}
	}

	uids, err := c.conn.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("searching mailbox: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
	if len(uids) > imapCandidateLimit {
		uids = uids[:imapCandidateLimit]
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.conn.UidFetch(seqSet, []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid}, messages)
	}()

	var refs []MessageRef
	for msg := range messages {
		ref := MessageRef{ID: strconv.FormatUint(uint64(msg.Uid), 10)}
		if msg.Envelope != nil {
			ref.Date = msg.Envelope.Date
			if len(msg.Envelope.From) > 0 {
				ref.From = msg.Envelope.From[0].Address()
			}
			for _, to := range msg.Envelope.To {
				if strings.EqualFold(to.Address(), c.address) {
					ref.To = to.Address()
					break
				}
			}
		}
		// with a date search the server can hand back mail for other
		// recipients of a shared inbox; the To header is authoritative
		if c.strategy == searchByDateUnseen && !strings.EqualFold(ref.To, c.address) {
			continue
		}
		refs = append(refs, ref)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetching envelopes: %w", err)
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Date.After(refs[j].Date) })
	return refs, nil
}

func (c *imapClient) FetchBody(ctx context.Context, ref MessageRef) (string, error) {
	if err := c.connect(ctx); err != nil {
		return "", err
	}

	uid, err := strconv.ParseUint(ref.ID, 10, 32)
	if err != nil {
		return "", fmt.Errorf("bad message ref %q: %w", ref.ID, err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uint32(uid))

	section := &imap.BodySectionName{Peek: true}
	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.conn.UidFetch(seqSet, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	var body string
	for msg := range messages {
		literal := msg.GetBody(section)
		if literal == nil {
			continue
		}
		raw, err := io.ReadAll(literal)
		if err != nil {
			c.logger.Warn("reading message literal", "uid", uid, "error", err)
			continue
		}
		textBody, htmlBody := parseBody(raw, c.logger)
		body = chooseBody(textBody, htmlBody, c.flattener)
	}
	if err := <-done; err != nil {
		return "", fmt.Errorf("fetching body of %d: %w", uid, err)
	}

	return body, nil
}

// Acknowledge flags the consumed message deleted and expunges the mailbox.
func (c *imapClient) Acknowledge(ctx context.Context, ref MessageRef) error {
	if err := c.connect(ctx); err != nil {
		return err
	}

	uid, err := strconv.ParseUint(ref.ID, 10, 32)
	if err != nil {
		return fmt.Errorf("bad message ref %q: %w", ref.ID, err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uint32(uid))

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.DeletedFlag}
	if err := c.conn.UidStore(seqSet, item, flags, nil); err != nil {
		return fmt.Errorf("flagging message %d deleted: %w", uid, err)
	}

	if err := c.conn.Expunge(nil); err != nil {
		return fmt.Errorf("expunging mailbox: %w", err)
	}
	return nil
}

func (c *imapClient) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Logout()
	c.conn = nil
	return err
}
