package payload

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// DomainConfig separates config fingerprints from any other hash use.
const DomainConfig = "beacon/config/v1"

// hashWithDomain computes BLAKE3(domain + 0x00 + data), hex encoded.
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := blake3.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ConfigHash fingerprints a remote config document so the collector can
// tell whether the cached copy is current. Empty input hashes to "".
func ConfigHash(doc []byte) string {
	if len(doc) == 0 {
		return ""
	}
	return hashWithDomain(DomainConfig, doc)
}
