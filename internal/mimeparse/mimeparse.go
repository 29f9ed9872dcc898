// Package mimeparse walks a raw RFC 5322 message into a model.ParsedEmail,
// classifying and extracting attachments alongside headers and body parts.
package mimeparse

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"path/filepath"
	"strings"
	"time"

	"github.com/tyrchen/mailflow/internal/mailerr"
	"github.com/tyrchen/mailflow/internal/model"
)

const (
	headerInReplyTo  = "In-Reply-To"
	headerReferences = "References"
	headerMessageID  = "Message-Id"
)

// Options configures parsing limits.
type Options struct {
	MaxAttachments int
}

// DefaultOptions caps a message at 50 attachments.
func DefaultOptions() Options {
	return Options{MaxAttachments: 50}
}

// Parse decodes raw into a model.ParsedEmail. A structurally unreadable
// message (not even a valid RFC 5322 envelope) fails with ParseFailure; a
// message whose attachment count exceeds opts.MaxAttachments fails with
// TooManyAttachments.
func Parse(raw []byte, opts Options) (model.ParsedEmail, error) {
	if len(raw) == 0 {
		return model.ParsedEmail{}, mailerr.New(mailerr.ParseFailure, "empty message")
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return model.ParsedEmail{}, mailerr.Wrap(mailerr.ParseFailure, err, "read message envelope")
	}

	headers := extractHeaders(msg.Header)

	from := parseSingleAddress(headers.getFirst("From"))
	to := parseAddressList(headers.getFirst("To"))
	cc := parseAddressList(headers.getFirst("Cc"))
	bcc := parseAddressList(headers.getFirst("Bcc"))
	subject := decodeWords(headers.getFirst("Subject"))

	var date time.Time
	if d, err := msg.Header.Date(); err == nil {
		date = d
	}

	parsed := model.ParsedEmail{
		MessageID: strings.Trim(headers.getFirst(headerMessageID), "<> \t"),
		From:      from,
		To:        to,
		Cc:        cc,
		Bcc:       bcc,
		Subject:   subject,
		Date:      date,
		Headers:   headers.values,
		SizeBytes: int64(len(raw)),
	}

	contentType := msg.Header.Get("Content-Type")
	body, err := newBodyWalker(opts.MaxAttachments).walk(msg.Body, contentType)
	if err != nil {
		return model.ParsedEmail{}, err
	}

	parsed.BodyText = body.text
	parsed.HasText = body.hasText
	parsed.BodyHTML = body.html
	parsed.HasHTML = body.hasHTML
	parsed.Attachments = body.attachments

	return parsed, nil
}

type headerSet struct {
	values map[string][]string
}

// extractHeaders copies every header into a map, preserving multi-value
// headers, stripping bare CR/LF injection attempts from values, truncating
// oversized values, and decoding RFC 2047 encoded words. In-Reply-To,
// References, and Message-Id are not decoded, since downstream threading
// depends on their exact bytes, but like every other header they are
// truncated to maxHeaderLength.
func extractHeaders(h mail.Header) headerSet {
	const maxHeaderLength = 1000
	out := map[string][]string{}
	for key, values := range h {
		for _, v := range values {
			v = stripInjectedControlChars(v)
			if len(v) > maxHeaderLength {
				v = v[:maxHeaderLength]
			}
			switch key {
			case headerInReplyTo, headerReferences, headerMessageID:
				// preserved verbatim, no decoding
			default:
				v = decodeWords(v)
			}
			out[key] = append(out[key], v)
		}
	}
	return headerSet{values: out}
}

func (h headerSet) getFirst(key string) string {
	if vs, ok := h.values[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// stripInjectedControlChars removes bare CR/LF that are not part of
// standard RFC 5322 header folding (i.e. not immediately followed by
// whitespace), defending against header injection from adversarial relays
// without rejecting the message outright.
func stripInjectedControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\r' || r == '\n' {
			if i+1 < len(runes) && (runes[i+1] == ' ' || runes[i+1] == '\t') {
				b.WriteRune(r)
				continue
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func decodeWords(s string) string {
	if s == "" {
		return ""
	}
	decoded, err := (&mime.WordDecoder{}).DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

func parseSingleAddress(raw string) model.Address {
	if raw == "" {
		return model.Address{}
	}
	if addr, err := mail.ParseAddress(raw); err == nil {
		return model.Address{Address: addr.Address, Name: addr.Name}
	}
	return model.Address{Address: strings.TrimSpace(raw)}
}

func parseAddressList(raw string) []model.Address {
	if raw == "" {
		return nil
	}
	addrs, err := mail.ParseAddressList(raw)
	if err != nil {
		return []model.Address{{Address: strings.TrimSpace(raw)}}
	}
	out := make([]model.Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, model.Address{Address: a.Address, Name: a.Name})
	}
	return out
}

type bodyResult struct {
	text        string
	hasText     bool
	html        string
	hasHTML     bool
	attachments []model.AttachmentRaw
}

type bodyWalker struct {
	maxAttachments int
	inlineIndex    int
	result         bodyResult
}

func newBodyWalker(maxAttachments int) *bodyWalker {
	return &bodyWalker{maxAttachments: maxAttachments}
}

func (w *bodyWalker) walk(body io.Reader, contentType string) (bodyResult, error) {
	if contentType == "" {
		contentType = "text/plain; charset=us-ascii"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		data, _ := io.ReadAll(body)
		w.result.text = string(data)
		w.result.hasText = true
		return w.result, nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		if err := w.walkMultipart(body, params["boundary"]); err != nil {
			return bodyResult{}, err
		}
		return w.result, nil
	}

	data, _ := io.ReadAll(body)
	w.assignTopLevel(mediaType, string(data))
	return w.result, nil
}

func (w *bodyWalker) assignTopLevel(mediaType, data string) {
	switch mediaType {
	case "text/html":
		w.result.html = data
		w.result.hasHTML = true
	default:
		w.result.text = data
		w.result.hasText = true
	}
}

func (w *bodyWalker) walkMultipart(body io.Reader, boundary string) error {
	if boundary == "" {
		return mailerr.New(mailerr.ParseFailure, "multipart message missing boundary")
	}
	reader := multipart.NewReader(body, boundary)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return mailerr.Wrap(mailerr.ParseFailure, err, "read multipart part")
		}
		if err := w.handlePart(part); err != nil {
			part.Close()
			return err
		}
		part.Close()
	}
}

func (w *bodyWalker) handlePart(part *multipart.Part) error {
	contentType := part.Header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
		params = map[string]string{}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return w.walkMultipart(part, params["boundary"])
	}

	disposition, dispositionParams := parseDisposition(part.Header.Get("Content-Disposition"))
	contentID := strings.Trim(part.Header.Get("Content-Id"), "<> \t")
	filename := decodeWords(firstNonEmpty(dispositionParams["filename"], params["name"]))

	isAttachment := classifyAttachment(disposition, contentID, mediaType, filename)
	if !isAttachment {
		data, err := io.ReadAll(part)
		if err != nil {
			return mailerr.Wrap(mailerr.ParseFailure, err, "read inline part body")
		}
		w.assignTopLevel(mediaType, string(data))
		return nil
	}

	if len(w.result.attachments) >= w.maxAttachments {
		return mailerr.New(mailerr.TooManyAttachments, fmt.Sprintf("message exceeds %d attachments", w.maxAttachments))
	}

	data, err := io.ReadAll(part)
	if err != nil {
		return mailerr.Wrap(mailerr.ParseFailure, err, "read attachment part body")
	}

	if filename == "" {
		w.inlineIndex++
		filename = fmt.Sprintf("inline-%d%s", w.inlineIndex, extensionFor(mediaType))
	}

	disp := model.DispositionAttachment
	if disposition == "inline" {
		disp = model.DispositionInline
	}

	w.result.attachments = append(w.result.attachments, model.AttachmentRaw{
		OriginalFilename:    filename,
		DeclaredContentType: mediaType,
		Bytes:               data,
		Disposition:         disp,
		ContentID:           contentID,
	})
	return nil
}

// classifyAttachment reports whether a part is an attachment: its
// Content-Disposition is attachment; or its Content-Disposition is inline
// AND it carries a Content-ID; or it is binary (non-text top-level type)
// and carries a filename.
func classifyAttachment(disposition, contentID, mediaType, filename string) bool {
	if disposition == "attachment" {
		return true
	}
	if disposition == "inline" && contentID != "" {
		return true
	}
	if !strings.HasPrefix(mediaType, "text/") && mediaType != "message/rfc822" && filename != "" {
		return true
	}
	return false
}

func parseDisposition(raw string) (string, map[string]string) {
	if raw == "" {
		return "", map[string]string{}
	}
	disposition, params, err := mime.ParseMediaType(raw)
	if err != nil {
		return "", map[string]string{}
	}
	return disposition, params
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func extensionFor(mediaType string) string {
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "text/plain":
		return ".txt"
	case "text/html":
		return ".html"
	case "application/pdf":
		return ".pdf"
	default:
		if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
			return exts[0]
		}
		return filepath.Ext(mediaType)
	}
}