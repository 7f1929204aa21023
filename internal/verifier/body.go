package verifier

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset" // register decoders for declared charsets
	"github.com/emersion/go-message/mail"

	"github.com/dispomail/dispomail/internal/parser"
)

// parseBody walks a raw RFC 5322 message and returns its first text/plain
// and text/html bodies. Attachment parts never contain the code and are
// skipped. A message that cannot be parsed at all is treated as one big
// plain-text body rather than an error.
func parseBody(raw []byte, logger *slog.Logger) (textBody, htmlBody string) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && mr == nil {
		return string(raw), ""
	}
	return readParts(mr, logger)
}

// readParts drains a mail reader, preferring the first part of each content
// type. Parts with an undeclared or unknown charset are read raw as a lossy
// fallback instead of aborting the message.
func readParts(mr *mail.Reader, logger *slog.Logger) (textBody, htmlBody string) {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			logger.Debug("reading mime part", "error", err)
			break
		}
		if part == nil {
			break
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			// attachment part
			continue
		}

		contentType, _, _ := header.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			logger.Debug("reading part body", "content_type", contentType, "error", readErr)
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain") && textBody == "":
			textBody = string(body)
		case strings.HasPrefix(contentType, "text/html") && htmlBody == "":
			htmlBody = string(body)
		}
	}
	return textBody, htmlBody
}

// chooseBody picks the plain-text rendition of a message, flattening the
// HTML part only when no text/plain part exists.
func chooseBody(textBody, htmlBody string, flattener *parser.HTMLFlattener) string {
	if strings.TrimSpace(textBody) != "" {
		return textBody
	}
	if htmlBody == "" {
		return ""
	}
	flat, err := flattener.Flatten(htmlBody)
	if err != nil || flat == "" {
		return htmlBody
	}
	return flat
}
