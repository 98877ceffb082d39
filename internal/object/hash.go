package object

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for content-addressed identity. The version suffix enables
// future algorithm migration without hash collisions across schemes.
const (
	DomainObject = "revenant/object/v1"
	DomainCode   = "revenant/code/v1"
)

// HashPayload computes the content hash of an encoded object:
// SHA256(domain 0x00 type_tag 0x00 payload), hex encoded.
// The null separators prevent boundary ambiguity between the parts.
func HashPayload(domain string, tag Tag, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write([]byte(tag))
	h.Write([]byte{0x00})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// HashCode computes the content hash of a code definition body.
func HashCode(content string) string {
	h := sha256.New()
	h.Write([]byte(DomainCode))
	h.Write([]byte{0x00})
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}
