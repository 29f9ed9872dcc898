// Package filetype validates an attachment's declared extension against an
// allowlist and its leading bytes against the extension's expected magic
// signature, rejecting a fixed executable/script extension list as a
// belt-and-braces check regardless of magic bytes.
package filetype

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/tyrchen/mailflow/internal/mailerr"
)

// textExtensions bypass magic-byte checks since plain text has no reliable
// signature.
var textExtensions = map[string]bool{
	".txt": true, ".text": true, ".log": true, ".md": true, ".csv": true,
}

// allowedExtensions lists accepted extensions: images, pdf, office docs,
// zip, and the plain-text family.
var allowedExtensions = map[string]bool{
	".pdf": true,
	".doc": true, ".docx": true, ".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".bmp": true, ".tiff": true, ".tif": true,
	".zip": true,
	".txt": true, ".text": true, ".log": true, ".md": true, ".csv": true,
}

// blockedExtensions is the executable/script family: rejected regardless
// of magic bytes.
var blockedExtensions = map[string]bool{
	".exe": true, ".bat": true, ".cmd": true, ".vbs": true, ".js": true,
	".jar": true, ".msi": true, ".scr": true, ".pif": true, ".com": true,
}

type signature struct {
	bytes  []byte
	offset int
}

// magicSignatures maps an allowed extension to its acceptable magic-byte
// signatures. Office Open XML formats and zip are all PKZIP containers.
var magicSignatures = map[string][]signature{
	".pdf":  {{bytes: []byte("%PDF-"), offset: 0}},
	".png":  {{bytes: []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, offset: 0}},
	".jpg":  {{bytes: []byte{0xFF, 0xD8, 0xFF}, offset: 0}},
	".jpeg": {{bytes: []byte{0xFF, 0xD8, 0xFF}, offset: 0}},
	".gif":  {{bytes: []byte("GIF87a"), offset: 0}, {bytes: []byte("GIF89a"), offset: 0}},
	".bmp":  {{bytes: []byte("BM"), offset: 0}},
	".tiff": {{bytes: []byte{0x49, 0x49, 0x2A, 0x00}, offset: 0}, {bytes: []byte{0x4D, 0x4D, 0x00, 0x2A}, offset: 0}},
	".tif":  {{bytes: []byte{0x49, 0x49, 0x2A, 0x00}, offset: 0}, {bytes: []byte{0x4D, 0x4D, 0x00, 0x2A}, offset: 0}},
	".webp": {{bytes: []byte("RIFF"), offset: 0}},
	".zip":  {{bytes: []byte{0x50, 0x4B, 0x03, 0x04}, offset: 0}, {bytes: []byte{0x50, 0x4B, 0x05, 0x06}, offset: 0}},
	".docx": {{bytes: []byte{0x50, 0x4B, 0x03, 0x04}, offset: 0}},
	".xlsx": {{bytes: []byte{0x50, 0x4B, 0x03, 0x04}, offset: 0}},
	".pptx": {{bytes: []byte{0x50, 0x4B, 0x03, 0x04}, offset: 0}},
	".doc":  {{bytes: []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, offset: 0}},
	".xls":  {{bytes: []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, offset: 0}},
	".ppt":  {{bytes: []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, offset: 0}},
}

// Validate checks filename's extension against the allowlist/blocklist and,
// for non-text extensions, checks data's leading bytes against the
// extension's magic signature.
func Validate(filename string, data []byte) error {
	ext := strings.ToLower(filepath.Ext(filename))

	if blockedExtensions[ext] {
		return mailerr.New(mailerr.FileTypeRejected, "extension "+ext+" is on the blocked list")
	}
	if !allowedExtensions[ext] {
		return mailerr.New(mailerr.FileTypeRejected, "extension "+ext+" is not in the allowlist")
	}
	if textExtensions[ext] {
		return nil
	}

	sigs, known := magicSignatures[ext]
	if !known {
		return mailerr.New(mailerr.FileTypeRejected, "no magic signature registered for allowed extension "+ext)
	}
	for _, sig := range sigs {
		if matchesSignature(data, sig) {
			return nil
		}
	}
	return mailerr.New(mailerr.FileTypeRejected, "magic bytes for "+filename+" do not match extension "+ext)
}

func matchesSignature(data []byte, sig signature) bool {
	if len(data) < sig.offset+len(sig.bytes) {
		return false
	}
	return bytes.Equal(data[sig.offset:sig.offset+len(sig.bytes)], sig.bytes)
}