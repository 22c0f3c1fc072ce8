package mirror

import (
	"bytes"
	"encoding/base64"
	"unicode/utf8"
)

// Dirent is one in-memory entry of the project tree: a file with its
// content, or a folder. For binary files Content holds a base64 encoding of
// the raw bytes; IsBinary is derived once at ingestion and never re-derived.
type Dirent struct {
	Kind     DirentKind
	Content  string
	IsBinary bool
}

// DirentKind discriminates mirror entries.
type DirentKind string

const (
	DirentFile   DirentKind = "file"
	DirentFolder DirentKind = "folder"
)

// emptyFileSentinel works around stores that cannot represent a zero-byte
// file reliably: an empty write goes out as a single space and is decoded
// back to empty on ingestion.
const emptyFileSentinel = " "

const sniffLen = 8000

// detectBinary sniffs raw bytes the way git does: a NUL in the leading
// window or invalid UTF-8 marks the content as binary.
func detectBinary(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	window := data
	if len(window) > sniffLen {
		window = window[:sniffLen]
	}
	if bytes.IndexByte(window, 0) >= 0 {
		return true
	}
	return !utf8.Valid(data)
}

// encodeForWrite prepares raw content for the backend, applying the
// empty-file sentinel.
func encodeForWrite(content []byte) []byte {
	if len(content) == 0 {
		return []byte(emptyFileSentinel)
	}
	return content
}

// decodeSentinel reverses the empty-file workaround on read-back.
func decodeSentinel(raw []byte) []byte {
	if string(raw) == emptyFileSentinel {
		return nil
	}
	return raw
}

// newFileDirent ingests raw backend bytes into a file Dirent, decoding the
// sentinel and sniffing binary content exactly once.
func newFileDirent(raw []byte) Dirent {
	raw = decodeSentinel(raw)
	if detectBinary(raw) {
		return Dirent{
			Kind:     DirentFile,
			Content:  base64.StdEncoding.EncodeToString(raw),
			IsBinary: true,
		}
	}
	return Dirent{Kind: DirentFile, Content: string(raw)}
}

// folderDirent is the canonical folder entry.
func folderDirent() Dirent {
	return Dirent{Kind: DirentFolder}
}
