package verifier

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/knadh/go-pop3"

	"github.com/dispomail/dispomail/internal/parser"
)

// pop3RecentWindow bounds how many of the newest messages one listing
// inspects. POP3 has no server-side filtering, so every candidate costs a
// TOP round trip.
const pop3RecentWindow = 10

// pop3Client reads a POP3 mailbox. Message numbers ascend with arrival
// order, so the highest numbers are the newest messages.
type pop3Client struct {
	address   string
	cfg       POP3Config
	flattener *parser.HTMLFlattener
	logger    *slog.Logger

	conn *pop3.Conn
}

func newPOP3Client(cfg MailboxConfig, logger *slog.Logger) *pop3Client {
	return &pop3Client{
		address:   cfg.Address,
		cfg:       *cfg.POP3,
		flattener: parser.NewHTMLFlattener(),
		logger:    logger.With("client", "pop3"),
	}
}

func (c *pop3Client) connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	port := c.cfg.Port
	if port == 0 {
		if c.cfg.UseTLS {
			port = 995
		} else {
			port = 110
		}
	}

	p := pop3.New(pop3.Opt{
		Host:        c.cfg.Host,
		Port:        port,
		TLSEnabled:  c.cfg.UseTLS,
		DialTimeout: timeout,
	})

	conn, err := p.NewConn()
	if err != nil {
		return fmt.Errorf("connecting to POP3 %s:%d: %w", c.cfg.Host, port, err)
	}

	if err := conn.Auth(c.cfg.Username, c.cfg.Password); err != nil {
		_ = conn.Quit()
		return authFailure(fmt.Errorf("login as %s: %v", c.cfg.Username, err))
	}

	c.conn = conn
	return nil
}

func (c *pop3Client) ListCandidates(ctx context.Context) ([]MessageRef, error) {
	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	count, _, err := c.conn.Stat()
	if err != nil {
		return nil, fmt.Errorf("requesting mailbox stat: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	oldest := count - pop3RecentWindow + 1
	if oldest < 1 {
		oldest = 1
	}

	expectedSender := strings.ToLower(c.cfg.ExpectedSender)

	var refs []MessageRef
	for n := count; n >= oldest; n-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		top, err := c.conn.Top(n, 0)
		if err != nil {
			c.logger.Debug("TOP failed", "message", n, "error", err)
			continue
		}

		header := mail.Header{Header: top.Header}
		ref := MessageRef{ID: strconv.Itoa(n)}
		if date, err := header.Date(); err == nil {
			ref.Date = date
		}
		if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
			ref.From = from[0].Address
		}
		if to, err := header.AddressList("To"); err == nil {
			for _, addr := range to {
				if strings.EqualFold(addr.Address, c.address) {
					ref.To = addr.Address
					break
				}
			}
			// headers parsed and the mailbox is not a recipient: a
			// catch-all box holding someone else's mail
			if ref.To == "" && len(to) > 0 {
				continue
			}
		}

		if expectedSender != "" && !strings.Contains(strings.ToLower(ref.From), expectedSender) {
			continue
		}

		refs = append(refs, ref)
	}

	// built newest-first already: message numbers descend from count
	return refs, nil
}

func (c *pop3Client) FetchBody(ctx context.Context, ref MessageRef) (string, error) {
	if err := c.connect(ctx); err != nil {
		return "", err
	}

	n, err := strconv.Atoi(ref.ID)
	if err != nil {
		return "", fmt.Errorf("bad message ref %q: %w", ref.ID, err)
	}

	entity, err := c.conn.Retr(n)
	if err != nil {
		return "", fmt.Errorf("retrieving message %d: %w", n, err)
	}

	textBody, htmlBody := readParts(mail.NewReader(entity), c.logger)
	return chooseBody(textBody, htmlBody, c.flattener), nil
}

// Acknowledge deletes the message only when policy asks for it; leaving mail
// on the server is the POP3 default.
func (c *pop3Client) Acknowledge(ctx context.Context, ref MessageRef) error {
	if !c.cfg.DeleteAfterRead {
		return nil
	}
	if err := c.connect(ctx); err != nil {
		return err
	}

	n, err := strconv.Atoi(ref.ID)
	if err != nil {
		return fmt.Errorf("bad message ref %q: %w", ref.ID, err)
	}
	if err := c.conn.Dele(n); err != nil {
		return fmt.Errorf("deleting message %d: %w", n, err)
	}
	return nil
}

func (c *pop3Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Quit()
	c.conn = nil
	return err
}
