// Package mimecompose builds a raw RFC 5322 message from an OutboundMessage
// and its already-fetched attachment bytes, the send-side mirror of
// internal/mimeparse.
package mimecompose

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"

	"github.com/tyrchen/mailflow/internal/mailerr"
	"github.com/tyrchen/mailflow/internal/model"
)

// Attachment is a fetched attachment ready to be embedded in the composed
// message.
type Attachment struct {
	Ref  model.OutboundAttachmentRef
	Data []byte
}

// Compose builds a raw message from msg and fetched, enforcing maxBytes on
// the final encoded size.
func Compose(msg model.OutboundMessage, fetched []Attachment, maxBytes int64) ([]byte, error) {
	var buf bytes.Buffer

	writeAddressHeader(&buf, "From", mail.Address{Address: msg.From})
	writeAddressListHeader(&buf, "To", msg.To)
	if len(msg.Cc) > 0 {
		writeAddressListHeader(&buf, "Cc", msg.Cc)
	}
	if msg.ReplyTo != "" {
		writeAddressHeader(&buf, "Reply-To", mail.Address{Address: msg.ReplyTo})
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))

	for k, v := range msg.Headers {
		if isThreadingHeader(k) && v == "" {
			continue
		}
		fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
	}

	hasText := msg.Body.Text != ""
	hasHTML := msg.Body.HTML != ""

	if len(fetched) == 0 {
		if err := writeSimpleBody(&buf, msg.Body, hasText, hasHTML); err != nil {
			return nil, err
		}
	} else {
		if err := writeMixedBody(&buf, msg.Body, hasText, hasHTML, fetched); err != nil {
			return nil, err
		}
	}

	if int64(buf.Len()) > maxBytes {
		return nil, mailerr.New(mailerr.ComposedTooLarge, fmt.Sprintf("composed message is %d bytes, exceeds %d", buf.Len(), maxBytes))
	}

	return buf.Bytes(), nil
}

func isThreadingHeader(k string) bool {
	switch k {
	case "In-Reply-To", "References", "Message-Id":
		return true
	default:
		return false
	}
}

func writeAddressHeader(buf *bytes.Buffer, name string, addr mail.Address) {
	fmt.Fprintf(buf, "%s: %s\r\n", name, addr.String())
}

func writeAddressListHeader(buf *bytes.Buffer, name string, addrs []string) {
	quoted := make([]string, len(addrs))
	for i, a := range addrs {
		quoted[i] = a
	}
	fmt.Fprintf(buf, "%s: %s\r\n", name, strings.Join(quoted, ", "))
}

// writeSimpleBody writes a single text/html alternative, or a text-only or
// html-only body when only one is present, with no attachments.
func writeSimpleBody(buf *bytes.Buffer, body model.InboundBody, hasText, hasHTML bool) error {
	switch {
	case hasText && hasHTML:
		boundary := newBoundary()
		fmt.Fprintf(buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
		w := multipart.NewWriter(buf)
		w.SetBoundary(boundary)
		if err := writeTextPart(w, body.Text); err != nil {
			return err
		}
		if err := writeHTMLPart(w, body.HTML); err != nil {
			return err
		}
		return w.Close()
	case hasHTML:
		buf.WriteString("Content-Type: text/html; charset=utf-8\r\n")
		buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
		return encodeQuotedPrintable(buf, body.HTML)
	default:
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
		buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
		return encodeQuotedPrintable(buf, body.Text)
	}
}

// writeMixedBody writes multipart/mixed whose first part is the
// multipart/alternative body, followed by one part per attachment.
func writeMixedBody(buf *bytes.Buffer, body model.InboundBody, hasText, hasHTML bool, fetched []Attachment) error {
	outerBoundary := newBoundary()
	fmt.Fprintf(buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", outerBoundary)
	outer := multipart.NewWriter(buf)
	outer.SetBoundary(outerBoundary)

	altBuf := &bytes.Buffer{}
	if err := writeSimpleBody(altBuf, body, hasText, hasHTML); err != nil {
		return err
	}
	headerEnd := bytes.Index(altBuf.Bytes(), []byte("\r\n\r\n"))
	var partHeader textproto.MIMEHeader
	var partBody []byte
	if headerEnd >= 0 {
		partHeader = parseMIMEHeaderBlock(altBuf.Bytes()[:headerEnd])
		partBody = altBuf.Bytes()[headerEnd+4:]
	} else {
		partHeader = textproto.MIMEHeader{"Content-Type": []string{"text/plain; charset=utf-8"}}
		partBody = altBuf.Bytes()
	}
	altPart, err := outer.CreatePart(partHeader)
	if err != nil {
		return mailerr.Wrap(mailerr.ComposedTooLarge, err, "create alternative part")
	}
	if _, err := altPart.Write(partBody); err != nil {
		return mailerr.Wrap(mailerr.ComposedTooLarge, err, "write alternative part body")
	}

	for _, att := range fetched {
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", att.Ref.ContentType)
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Ref.OriginalFilename))
		h.Set("Content-Transfer-Encoding", "base64")
		part, err := outer.CreatePart(h)
		if err != nil {
			return mailerr.Wrap(mailerr.ComposedTooLarge, err, "create attachment part")
		}
		encoded := make([]byte, base64.StdEncoding.EncodedLen(len(att.Data)))
		base64.StdEncoding.Encode(encoded, att.Data)
		if _, err := part.Write(encoded); err != nil {
			return mailerr.Wrap(mailerr.ComposedTooLarge, err, "write attachment part body")
		}
	}

	return outer.Close()
}

func writeTextPart(w *multipart.Writer, text string) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	part, err := w.CreatePart(h)
	if err != nil {
		return mailerr.Wrap(mailerr.ComposedTooLarge, err, "create text part")
	}
	return encodeQuotedPrintable(part, text)
}

func writeHTMLPart(w *multipart.Writer, html string) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	part, err := w.CreatePart(h)
	if err != nil {
		return mailerr.Wrap(mailerr.ComposedTooLarge, err, "create html part")
	}
	return encodeQuotedPrintable(part, html)
}

func encodeQuotedPrintable(w interface{ Write([]byte) (int, error) }, s string) error {
	qw := quotedprintable.NewWriter(w)
	if _, err := qw.Write([]byte(s)); err != nil {
		return mailerr.Wrap(mailerr.ComposedTooLarge, err, "quoted-printable encode")
	}
	return qw.Close()
}

func parseMIMEHeaderBlock(raw []byte) textproto.MIMEHeader {
	h := textproto.MIMEHeader{}
	lines := strings.Split(string(raw), "\r\n")
	for _, line := range lines {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		h.Add(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
	}
	return h
}

var boundaryCounter int

func newBoundary() string {
	boundaryCounter++
	return fmt.Sprintf("mailflow-boundary-%08x", boundaryCounter)
}