package crypto

import "encoding/binary"

// Fingerprint returns a stable 64-bit hash of a public key's canonical
// encoding, used as the PKI directory key. It is derived from the first
// 8 bytes of SHA-256(pubkey), which is stable for any given key but not
// reversible.
func (pub PublicKey) Fingerprint() uint64 {
	h := HashBytes(pub)
	return binary.BigEndian.Uint64(h[:8])
}
