package attachment

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/tyrchen/mailflow/internal/model"
	"github.com/tyrchen/mailflow/internal/objectstore"
)

func testConfig() Config {
	return Config{Bucket: "attachments", MaxAttachmentBytes: 1 << 20, PresignedURLTTL: time.Hour, FanOut: 4}
}

func TestProcessUploadsValidAttachment(t *testing.T) {
	store := objectstore.NewMock()
	p := New(store, testConfig())
	raw := []model.AttachmentRaw{{
		OriginalFilename:    "report.pdf",
		DeclaredContentType: "application/pdf",
		Bytes:               []byte("%PDF-1.4 contents"),
	}}
	results, err := p.Process(context.Background(), "msg-1", raw)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Status != model.AttachmentAvailable {
		t.Fatalf("expected available, got %s error=%s", results[0].Status, results[0].Error)
	}
	if results[0].StorageKey != "msg-1/report.pdf" {
		t.Fatalf("got storage key %q", results[0].StorageKey)
	}
	if results[0].ChecksumMD5 == "" {
		t.Fatal("expected checksum set")
	}
}

func TestProcessMarksOversizedAttachmentFailedWithoutAbortingOthers(t *testing.T) {
	store := objectstore.NewMock()
	cfg := testConfig()
	cfg.MaxAttachmentBytes = 4
	p := New(store, cfg)
	raw := []model.AttachmentRaw{
		{OriginalFilename: "too-big.txt", DeclaredContentType: "text/plain", Bytes: []byte("this is too big")},
		{OriginalFilename: "fine.txt", DeclaredContentType: "text/plain", Bytes: []byte("ok")},
	}
	results, err := p.Process(context.Background(), "msg-2", raw)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if results[0].Status != model.AttachmentFailed {
		t.Fatalf("expected first attachment failed, got %s", results[0].Status)
	}
	if results[1].Status != model.AttachmentAvailable {
		t.Fatalf("expected second attachment to still succeed, got %s", results[1].Status)
	}
}

func TestProcessBlockedExtensionReportsFileTypeRejectedKind(t *testing.T) {
	store := objectstore.NewMock()
	p := New(store, testConfig())
	raw := []model.AttachmentRaw{
		{OriginalFilename: "payload.exe", DeclaredContentType: "application/octet-stream", Bytes: []byte("MZ")},
	}
	results, err := p.Process(context.Background(), "msg-5", raw)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if results[0].Status != model.AttachmentFailed {
		t.Fatalf("expected failed, got %s", results[0].Status)
	}
	if !strings.HasPrefix(results[0].Error, "FileTypeRejected") {
		t.Fatalf("expected error to start with FileTypeRejected, got %q", results[0].Error)
	}
}

func TestProcessDeduplicatesDuplicateFilenames(t *testing.T) {
	store := objectstore.NewMock()
	p := New(store, testConfig())
	raw := []model.AttachmentRaw{
		{OriginalFilename: "notes.txt", DeclaredContentType: "text/plain", Bytes: []byte("first")},
		{OriginalFilename: "notes.txt", DeclaredContentType: "text/plain", Bytes: []byte("second")},
	}
	results, err := p.Process(context.Background(), "msg-3", raw)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if results[0].StorageKey == results[1].StorageKey {
		t.Fatalf("expected distinct storage keys, both %q", results[0].StorageKey)
	}
	if results[1].StorageKey != "msg-3/notes-1.txt" {
		t.Fatalf("got storage key %q", results[1].StorageKey)
	}
}

func TestProcessPreservesInputOrderUnderFanOut(t *testing.T) {
	store := objectstore.NewMock()
	p := New(store, testConfig())
	raw := make([]model.AttachmentRaw, 10)
	for i := range raw {
		raw[i] = model.AttachmentRaw{
			OriginalFilename:    "f.txt",
			DeclaredContentType: "text/plain",
			Bytes:               []byte{byte(i)},
		}
	}
	results, err := p.Process(context.Background(), "msg-4", raw)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	for i, r := range results {
		if r.OriginalFilename != "f.txt" {
			t.Fatalf("index %d: expected original filename preserved, got %q", i, r.OriginalFilename)
		}
		sum := md5.Sum([]byte{byte(i)})
		if r.ChecksumMD5 != hex.EncodeToString(sum[:]) {
			t.Fatalf("index %d: result does not carry input %d's checksum", i, i)
		}
	}
}
