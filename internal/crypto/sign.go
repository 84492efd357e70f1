package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
)

var ErrInvalidHexDigest = errors.New("crypto: digest is not valid hex")

// Sign produces a signature over the hex-encoded digest hexDigest.
func Sign(priv *ecdsa.PrivateKey, hexDigest string) ([]byte, error) {
	digest, err := hex.DecodeString(hexDigest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHexDigest, err)
	}
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest)
	if err != nil {
		return nil, fmt.Errorf("crypto: signing failed: %w", err)
	}
	return marshalSig(r, s), nil
}

// Verify checks sig against hexDigest for the given public key.
func Verify(pub *ecdsa.PublicKey, hexDigest string, sig []byte) (bool, error) {
	digest, err := hex.DecodeString(hexDigest)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidHexDigest, err)
	}
	r, s, err := unmarshalSig(sig)
	if err != nil {
		return false, err
	}
	return ecdsa.Verify(pub, digest, r, s), nil
}

func marshalSig(r, s *big.Int) []byte {
	const fieldLen = 32
	out := make([]byte, 2*fieldLen)
	r.FillBytes(out[:fieldLen])
	s.FillBytes(out[fieldLen:])
	return out
}

func unmarshalSig(sig []byte) (*big.Int, *big.Int, error) {
	const fieldLen = 32
	if len(sig) != 2*fieldLen {
		return nil, nil, fmt.Errorf("crypto: signature must be %d bytes, got %d", 2*fieldLen, len(sig))
	}
	r := new(big.Int).SetBytes(sig[:fieldLen])
	s := new(big.Int).SetBytes(sig[fieldLen:])
	return r, s, nil
}
