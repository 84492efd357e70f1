package crypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/ripemd160"
)

// PublicKeyHashLength is the length, in bytes, of a node's derived
// address hash: RIPEMD160(SHA256(pubkey)).
const PublicKeyHashLength = 20

// DeriveAddressHash reduces a raw public key to its 20-byte address hash.
func DeriveAddressHash(pubKeyBytes []byte) ([]byte, error) {
	sha := sha256.Sum256(pubKeyBytes)
	h := ripemd160.New()
	h.Write(sha[:])
	return h.Sum(nil), nil
}
