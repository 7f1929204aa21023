package verifier

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispomail/dispomail/internal/parser"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const multipartMessage = "From: noreply@service.test\r\n" +
	"To: box@example.com\r\n" +
	"Subject: Your code\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"BOUNDARY\"\r\n" +
	"\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Your code is 482913\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Your code is <b>482913</b></p>\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: application/octet-stream\r\n" +
	"Content-Disposition: attachment; filename=\"terms.pdf\"\r\n" +
	"\r\n" +
	"654321 binary junk\r\n" +
	"--BOUNDARY--\r\n"

func TestParseBodyMultipart(t *testing.T) {
	text, html := parseBody([]byte(multipartMessage), discardLogger())

	assert.Contains(t, text, "Your code is 482913")
	assert.Contains(t, html, "<b>482913</b>")
	assert.NotContains(t, text, "654321", "attachment parts are skipped")
	assert.NotContains(t, html, "654321", "attachment parts are skipped")
}

func TestParseBodySinglePart(t *testing.T) {
	raw := "From: noreply@service.test\r\n" +
		"To: box@example.com\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Code: 193755\r\n"

	text, html := parseBody([]byte(raw), discardLogger())
	assert.Contains(t, text, "193755")
	assert.Empty(t, html)
}

func TestParseBodyGarbageFallsBackToRaw(t *testing.T) {
	raw := "not an rfc5322 message at all\x00\x01 code 555666"
	text, _ := parseBody([]byte(raw), discardLogger())
	assert.Contains(t, text, "555666")
}

func TestChooseBodyPrefersPlainText(t *testing.T) {
	fl := parser.NewHTMLFlattener()

	assert.Equal(t, "plain", chooseBody("plain", "<p>html</p>", fl))

	flat := chooseBody("", "<p>Your code</p><p>928374</p>", fl)
	assert.Equal(t, "Your code\n928374", flat)

	assert.Empty(t, chooseBody("  \n ", "", fl))
}

func TestChooseBodyFeedsExtractor(t *testing.T) {
	// an HTML-only message must still yield its code end to end
	fl := parser.NewHTMLFlattener()
	e := parser.NewExtractor()

	body := chooseBody("", "<div>Hi box@example.com,</div><div>your code is 574902</div>", fl)
	code, found := e.Extract(body, "box@example.com")
	require.True(t, found)
	assert.Equal(t, "574902", code)
}
