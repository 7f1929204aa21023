package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	e := NewExtractor()

	tests := []struct {
		name    string
		body    string
		address string
		want    string
		found   bool
	}{
		{
			name:    "plain sentence",
			body:    "Your code is 482913. Do not share.",
			address: "x@y.com",
			want:    "482913",
			found:   true,
		},
		{
			name:    "code on its own line",
			body:    "Hello,\n\n193028\n\nThanks",
			address: "someone@example.com",
			want:    "193028",
			found:   true,
		},
		{
			name:    "code at start of body",
			body:    "482913 is your verification code",
			address: "x@y.com",
			want:    "482913",
			found:   true,
		},
		{
			name:    "digits inside longer run are rejected",
			body:    "ticket 12345678 is open",
			address: "x@y.com",
			found:   false,
		},
		{
			name:    "digits adjacent to @ are rejected",
			body:    "write to confirm12345678@y.com for help",
			address: "x@y.com",
			found:   false,
		},
		{
			name:    "digits preceded by letter are rejected",
			body:    "order ref AB482913 shipped",
			address: "x@y.com",
			found:   false,
		},
		{
			name:    "digits after dot are rejected",
			body:    "see release v2.483920 notes",
			address: "x@y.com",
			found:   false,
		},
		{
			name:    "six digit run inside mailbox address is not a code",
			body:    "a message for user493817@y.com arrived",
			address: "user493817@y.com",
			found:   false,
		},
		{
			name:    "address stripped before matching",
			body:    "Hi user493817@y.com, your code is 208415",
			address: "user493817@y.com",
			want:    "208415",
			found:   true,
		},
		{
			name:    "address matched case-insensitively",
			body:    "Hi User493817@Y.com, your code is 208415",
			address: "user493817@y.com",
			want:    "208415",
			found:   true,
		},
		{
			name:    "first of two codes wins",
			body:    "use 111222 or fallback 333444",
			address: "x@y.com",
			want:    "111222",
			found:   true,
		},
		{
			name:    "five digits are not enough",
			body:    "your code is 12345",
			address: "x@y.com",
			found:   false,
		},
		{
			name:    "empty body",
			body:    "",
			address: "x@y.com",
			found:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, found := e.Extract(tt.body, tt.address)
			require.Equal(t, tt.found, found)
			if tt.found {
				assert.Equal(t, tt.want, code)
			}
		})
	}
}
