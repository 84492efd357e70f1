package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multicodec"
)

// CodecSecp256r1PubKeyUncompressed is the multicodec tag for an
// uncompressed P-256 public key, used when encoding node identities as
// did:key strings.
const CodecSecp256r1PubKeyUncompressed multicodec.Code = 0x1201

var (
	ErrInvalidDIDKeyFormat  = errors.New("crypto: invalid did:key format")
	ErrUnexpectedEncoding   = errors.New("crypto: unexpected multibase encoding")
	ErrUnexpectedMulticodec = errors.New("crypto: unexpected multicodec type")
)

// NodeDID derives a did:key identity string from a node's public key. It
// is used as the transport layer's SenderID so peers can recover the
// sender's public key directly from the gossip envelope.
func NodeDID(pub *ecdsa.PublicKey) (string, error) {
	raw, err := MarshalPublicKey(pub)
	if err != nil {
		return "", err
	}
	return didFromRawKey(raw)
}

func didFromRawKey(pubKeyBytes []byte) (string, error) {
	if len(pubKeyBytes) != P256UncompressedPubKeyLength || pubKeyBytes[0] != 0x04 {
		return "", fmt.Errorf("%w: expected %d uncompressed bytes", ErrInvalidKeyFormat, P256UncompressedPubKeyLength)
	}

	var buf bytes.Buffer
	buf.Write(multicodec.Header(CodecSecp256r1PubKeyUncompressed))
	buf.Write(pubKeyBytes)

	encoded, err := multibase.Encode(multibase.Base58BTC, buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("crypto: failed to multibase-encode did:key: %w", err)
	}
	return "did:key:" + encoded, nil
}

// ParseNodeDID recovers the raw uncompressed public key bytes from a
// did:key string produced by NodeDID.
func ParseNodeDID(did string) ([]byte, error) {
	if !strings.HasPrefix(did, "did:key:") {
		return nil, ErrInvalidDIDKeyFormat
	}
	part := strings.TrimPrefix(did, "did:key:")

	enc, decoded, err := multibase.Decode(part)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to decode did:key: %w", err)
	}
	if enc != multibase.Base58BTC {
		return nil, ErrUnexpectedEncoding
	}

	codec, rest, err := multicodec.Consume(decoded)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to read multicodec header: %w", err)
	}
	if multicodec.Code(codec) != CodecSecp256r1PubKeyUncompressed {
		return nil, ErrUnexpectedMulticodec
	}
	if len(rest) != P256UncompressedPubKeyLength || rest[0] != 0x04 {
		return nil, fmt.Errorf("%w: decoded key has wrong length", ErrInvalidKeyFormat)
	}
	return rest, nil
}
