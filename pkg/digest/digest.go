// Package digest computes the hex digests used for content addressing and
// version identity: SHA-512 truncated to 256 bits, hex encoded.
package digest

import (
	"crypto/sha512"
	"encoding/hex"
	"io"
)

const hexLen = 64

// Hex returns the truncated SHA-512 hex digest of data.
func Hex(data []byte) string {
	sum := sha512.Sum512(data)
	return hex.EncodeToString(sum[:])[:hexLen]
}

// HexReader digests r to EOF, returning the digest and the byte count.
func HexReader(r io.Reader) (string, int64, error) {
	h := sha512.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil))[:hexLen], n, nil
}
