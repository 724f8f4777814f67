package report

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// qrPayloadPrefix tags the encoded string so a scanner can tell a dlt-sort
// manifest QR code apart from an arbitrary hex blob.
const qrPayloadPrefix = "dlt-sort:sha256:"

// sha256HexLen is the length of a SHA-256 digest rendered as hex.
const sha256HexLen = 64

// HashToQR renders a manifest's primary-output SHA-256 digest as a QR code
// PNG, prefixed so the payload self-identifies as a dlt-sort manifest hash.
// It rejects anything that isn't a well-formed SHA-256 hex digest rather
// than merely rejecting an empty string, since a malformed hash embedded in
// a scannable code is worse than refusing to render one.
func HashToQR(hash string, size int) ([]byte, error) {
	digest := sanitizeHash(hash)
	if len(digest) != sha256HexLen {
		return nil, fmt.Errorf("report: %q is not a %d-character sha256 hex digest", hash, sha256HexLen)
	}
	if size <= 0 {
		size = 128
	}

	payload := qrPayloadPrefix + digest
	level := qrcode.Medium
	if len(payload) > 80 {
		// A longer payload needs the QR's own capacity more than it needs
		// redundant error-correction bits at a fixed pixel size.
		level = qrcode.Low
	}

	png, err := qrcode.Encode(payload, level, size)
	if err != nil {
		return nil, fmt.Errorf("report: encode QR: %w", err)
	}
	return png, nil
}

// sanitizeHash lower-cases and strips everything but hex digits, so a hash
// copy-pasted with surrounding whitespace or mixed case still validates.
func sanitizeHash(hash string) string {
	lower := strings.ToLower(strings.TrimSpace(hash))
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
