// Package fingerprint computes content digests used as cache keys and builds
// data URLs for image payloads.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"strings"
)

// chunkSize bounds each read while hashing or encoding.
const chunkSize = 8192

// Size is the length of a fingerprint in hex characters.
const Size = sha256.Size * 2

// Sum returns the hex SHA-256 of data.
func Sum(data []byte) string {
	h := sha256.New()
	for off := 0; off < len(data); off += chunkSize {
		end := min(off+chunkSize, len(data))
		h.Write(data[off:end])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Read drains r, returning its bytes and their fingerprint in one pass.
func Read(r io.Reader) ([]byte, string, error) {
	h := sha256.New()
	var buf bytes.Buffer
	if _, err := io.CopyBuffer(io.MultiWriter(h, &buf), r, make([]byte, chunkSize)); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), hex.EncodeToString(h.Sum(nil)), nil
}

// Short truncates a fingerprint for log lines and notes.
func Short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

// DataURL renders data as a base64 data URL for the given media type.
func DataURL(mimeType string, data []byte) string {
	var sb strings.Builder
	sb.Grow(len("data:;base64,") + len(mimeType) + base64.StdEncoding.EncodedLen(len(data)))
	sb.WriteString("data:")
	sb.WriteString(mimeType)
	sb.WriteString(";base64,")
	enc := base64.NewEncoder(base64.StdEncoding, &sb)
	for off := 0; off < len(data); off += chunkSize {
		end := min(off+chunkSize, len(data))
		enc.Write(data[off:end])
	}
	enc.Close()
	return sb.String()
}
