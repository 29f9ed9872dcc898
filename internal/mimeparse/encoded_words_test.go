package mimeparse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawEncodedSubjectMessage carries an RFC 2047 encoded-word Subject and
// From, the shape real bulk-mail relays (mailing list software, marketing
// platforms) commonly emit.
const rawEncodedSubjectMessage = "Subject: =?utf-8?Q?Emulator=20Behind=20The=20Scenes?=\r\n" +
	"From: =?utf-8?Q?Example=20Sender?= <sender@example.com>\r\n" +
	"To: recipient@example.com\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"body\r\n"

func TestParseDecodesEncodedWordSubjectAndFromName(t *testing.T) {
	parsed, err := Parse([]byte(rawEncodedSubjectMessage), DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, "Emulator Behind The Scenes", parsed.Subject)
	assert.Equal(t, "Example Sender", parsed.From.Name)
	assert.Equal(t, "sender@example.com", parsed.From.Address)
}

func TestDecodeWordsLeavesPlainTextUntouched(t *testing.T) {
	assert.Equal(t, "plain subject", decodeWords("plain subject"))
}

func TestDecodeWordsFallsBackOnMalformedEncoding(t *testing.T) {
	malformed := "=?utf-8?Q?unterminated"
	assert.True(t, strings.Contains(decodeWords(malformed), "unterminated"))
}
