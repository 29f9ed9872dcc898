// Package attachment implements the per-message attachment pipeline: size
// check, file-type validation, filename sanitization, key construction,
// checksum, upload, and presign, fanned out with a bounded worker pool
// using a <message-id>/<filename> key scheme and an MD5 checksum.
package attachment

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tyrchen/mailflow/internal/filetype"
	"github.com/tyrchen/mailflow/internal/mailerr"
	"github.com/tyrchen/mailflow/internal/model"
	"github.com/tyrchen/mailflow/internal/objectstore"
	"github.com/tyrchen/mailflow/internal/sanitize"
)

// Config carries the processor's tunables, taken from config.StorageConfig.
type Config struct {
	Bucket             string
	MaxAttachmentBytes int64
	PresignedURLTTL    time.Duration
	FanOut             int
}

// Processor runs the attachment pipeline for a parsed message.
type Processor struct {
	store objectstore.Store
	cfg   Config
	now   func() time.Time
}

// New builds a Processor against an object store.
func New(store objectstore.Store, cfg Config) *Processor {
	if cfg.FanOut <= 0 {
		cfg.FanOut = 4
	}
	return &Processor{store: store, cfg: cfg, now: time.Now}
}

// Process uploads every attachment in raw, preserving input order in the
// returned metadata slice regardless of completion order under fan-out.
func (p *Processor) Process(ctx context.Context, messageID string, raw []model.AttachmentRaw) ([]model.AttachmentMetadata, error) {
	sanitizedMessageID, ok := sanitize.PathComponent(sanitize.FilenameStrict(messageID))
	if !ok {
		return nil, mailerr.New(mailerr.BadEventShape, "message id cannot be used as a storage path component")
	}

	keys := deduplicateFilenames(raw)
	results := make([]model.AttachmentMetadata, len(raw))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.FanOut)

	for i := range raw {
		i := i
		g.Go(func() error {
			results[i] = p.processOne(gctx, sanitizedMessageID, keys[i], raw[i])
			return nil
		})
	}
	// Errors from individual attachments are captured per-record as
	// status=failed, never propagated to the caller: one bad attachment
	// must not fail the whole message.
	_ = g.Wait()

	return results, nil
}

func (p *Processor) processOne(ctx context.Context, sanitizedMessageID, storageKeyFilename string, att model.AttachmentRaw) model.AttachmentMetadata {
	meta := model.AttachmentMetadata{
		OriginalFilename: att.OriginalFilename,
		ContentType:      att.DeclaredContentType,
		SizeBytes:        int64(len(att.Bytes)),
	}

	if int64(len(att.Bytes)) > p.cfg.MaxAttachmentBytes {
		return failedMeta(meta, mailerr.New(mailerr.AttachmentTooLarge, fmt.Sprintf("attachment exceeds %d byte limit", p.cfg.MaxAttachmentBytes)))
	}

	if err := filetype.Validate(storageKeyFilename, att.Bytes); err != nil {
		return failedMeta(meta, err)
	}

	meta.SanitizedFilename = storageKeyFilename

	keyComponent, ok := sanitize.PathComponent(storageKeyFilename)
	if !ok {
		return failedMeta(meta, mailerr.New(mailerr.BadMessageFormat, "sanitized filename is not a valid storage path component"))
	}
	storageKey := sanitizedMessageID + "/" + keyComponent

	sum := md5.Sum(att.Bytes)
	checksum := hex.EncodeToString(sum[:])

	if err := p.store.Put(ctx, p.cfg.Bucket, storageKey, att.Bytes, att.DeclaredContentType); err != nil {
		return failedMeta(meta, err)
	}

	ttl := p.cfg.PresignedURLTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	url, err := p.store.Presign(ctx, p.cfg.Bucket, storageKey, ttl)
	if err != nil {
		return failedMeta(meta, err)
	}

	meta.StorageBucket = p.cfg.Bucket
	meta.StorageKey = storageKey
	meta.ChecksumMD5 = checksum
	meta.PresignedURL = url
	meta.PresignedURLExpiresAt = p.now().Add(ttl)
	meta.Status = model.AttachmentAvailable
	return meta
}

// failedMeta marks meta failed with err's kind and a redacted detail. The
// kind prefix is what a consumer matches on (e.g. FileTypeRejected), so it
// must survive redaction intact; only address-shaped and slash-containing
// path-shaped substrings in the detail are stripped.
func failedMeta(meta model.AttachmentMetadata, err error) model.AttachmentMetadata {
	meta.Status = model.AttachmentFailed
	meta.Error = sanitize.ErrorDetail(err.Error())
	return meta
}

// deduplicateFilenames sanitizes each attachment's filename and appends
// "-<index>" before the extension for any name that collides with an
// earlier one in the same message.
func deduplicateFilenames(raw []model.AttachmentRaw) []string {
	seen := map[string]int{}
	out := make([]string, len(raw))
	for i, att := range raw {
		name := sanitize.FilenameStrict(att.OriginalFilename)
		count := seen[name]
		seen[name] = count + 1
		if count == 0 {
			out[i] = name
			continue
		}
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		out[i] = fmt.Sprintf("%s-%d%s", base, count, ext)
	}
	return out
}
