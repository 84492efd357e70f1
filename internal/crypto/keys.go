// Package crypto supplies the consensus core's external cryptographic
// collaborators: key generation, block hashing, signing/verification,
// node address derivation and the public-key registry.
package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

const (
	// P256UncompressedPubKeyLength is the byte length of an uncompressed
	// P-256 public key: a 0x04 prefix plus two 32-byte coordinates.
	P256UncompressedPubKeyLength = 65
)

var (
	ErrInvalidKeyFormat   = errors.New("crypto: invalid key format")
	ErrKeyGeneration      = errors.New("crypto: key generation failed")
	ErrKeySerialization   = errors.New("crypto: key serialization failed")
	ErrKeyDeserialization = errors.New("crypto: key deserialization failed")
	ErrPEMDecoding        = errors.New("crypto: pem decoding error")
)

// GenerateKeyPair generates a new ECDSA P-256 key pair for a node.
func GenerateKeyPair() (*ecdsa.PrivateKey, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	return priv, nil
}

// MarshalPublicKey serializes pub to its uncompressed 65-byte form.
func MarshalPublicKey(pub *ecdsa.PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, fmt.Errorf("%w: public key is nil", ErrKeySerialization)
	}
	if pub.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: public key curve must be P256, got %s", ErrInvalidKeyFormat, pub.Curve.Params().Name)
	}
	return elliptic.Marshal(elliptic.P256(), pub.X, pub.Y), nil
}

// UnmarshalPublicKey parses an uncompressed 65-byte P-256 public key.
func UnmarshalPublicKey(b []byte) (*ecdsa.PublicKey, error) {
	if len(b) != P256UncompressedPubKeyLength || b[0] != 0x04 {
		return nil, fmt.Errorf("%w: expected %d uncompressed bytes, got %d", ErrInvalidKeyFormat, P256UncompressedPubKeyLength, len(b))
	}
	x, y := elliptic.Unmarshal(elliptic.P256(), b)
	if x == nil || y == nil {
		return nil, fmt.Errorf("%w: failed to unmarshal curve point", ErrKeyDeserialization)
	}
	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
}

// SavePrivateKeyPEM writes priv to path as an unencrypted PKCS#8 PEM file,
// owner-readable only.
func SavePrivateKeyPEM(priv *ecdsa.PrivateKey, path string) error {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeySerialization, err)
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	return writeFile(path, pem.EncodeToMemory(block), 0600)
}

// LoadPrivateKeyPEM reads an unencrypted PKCS#8 or SEC1 private key file.
func LoadPrivateKeyPEM(path string) (*ecdsa.PrivateKey, error) {
	raw, err := readFile(path)
	if err != nil {
		return nil, err
	}
	block, rest := pem.Decode(raw)
	if block == nil {
		return nil, ErrPEMDecoding
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("%w: trailing data after PEM block", ErrPEMDecoding)
	}

	var key interface{}
	switch block.Type {
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("%w: unsupported PEM block type %q", ErrKeyDeserialization, block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyDeserialization, err)
	}
	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: PEM block is not an ECDSA key", ErrKeyDeserialization)
	}
	return ecKey, nil
}
