package mimecompose

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/tyrchen/mailflow/internal/mimeparse"
	"github.com/tyrchen/mailflow/internal/model"
)

// TestComposeParseRoundTrip checks the compose-then-parse round trip for the
// no-attachment case: composing a message with a subject and a text and/or
// HTML body, then parsing the result back, recovers the same subject and
// body content. Headers and addressing are deliberately excluded from the
// check since RFC 5322 folding/encoding is lossy-but-equivalent there, not
// byte-identical.
func TestComposeParseRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		subject := rapid.StringMatching(`[A-Za-z0-9 ]{0,40}`).Draw(t, "subject")
		text := rapid.StringMatching(`[A-Za-z0-9 .,\n]{0,200}`).Draw(t, "text")
		html := rapid.StringMatching(`[A-Za-z0-9 .,]{0,200}`).Draw(t, "html")
		if text == "" && html == "" {
			text = "placeholder"
		}

		msg := model.OutboundMessage{
			CorrelationID: "rt-1",
			From:          "sender@example.com",
			To:            []string{"recipient@example.com"},
			Subject:       subject,
			Body:          model.InboundBody{Text: text, HTML: html},
		}

		raw, err := Compose(msg, nil, 10*1024*1024)
		if err != nil {
			t.Fatalf("Compose: %v", err)
		}

		parsed, err := mimeparse.Parse(raw, mimeparse.DefaultOptions())
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}

		if parsed.Subject != subject {
			t.Fatalf("subject round-trip: got %q want %q", parsed.Subject, subject)
		}
		if text != "" && parsed.BodyText != text {
			t.Fatalf("text body round-trip: got %q want %q", parsed.BodyText, text)
		}
		if html != "" && parsed.BodyHTML != html {
			t.Fatalf("html body round-trip: got %q want %q", parsed.BodyHTML, html)
		}
	})
}
