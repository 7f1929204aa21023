package parser

import (
	"regexp"
	"strings"
)

// Extractor locates numeric one-time codes in email bodies.
//
// A plausible code is a run of exactly 6 digits with no digit adjacent on
// either side, and not immediately preceded by a letter, '@' or '.'. The
// guard rejects trailing digits of longer tokens, version strings and digit
// runs inside masked addresses or domain names.
type Extractor struct {
	codePattern *regexp.Regexp
}

// NewExtractor creates a new code extractor
func NewExtractor() *Extractor {
	return &Extractor{
		codePattern: regexp.MustCompile(`(?:^|[^\p{L}\p{N}@.])(\d{6})(?:\D|$)`),
	}
}

// Extract returns the first plausible 6-digit code in body. Every occurrence
// of the mailbox address is removed from the body first, so digits that
// happen to appear in the local part or domain are never mistaken for the
// code.
func (e *Extractor) Extract(body, mailboxAddress string) (string, bool) {
	if mailboxAddress != "" {
		addrPattern, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(mailboxAddress))
		if err == nil {
			body = addrPattern.ReplaceAllString(body, " ")
		} else {
			body = strings.ReplaceAll(body, mailboxAddress, " ")
		}
	}

	match := e.codePattern.FindStringSubmatch(body)
	if match == nil {
		return "", false
	}
	return match[1], true
}
