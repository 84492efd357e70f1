package crypto

import (
	"testing"

	"github.com/empower1/quorumnode/internal/chaintypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)

	b := chaintypes.Genesis(chaintypes.FlavorFinancial)
	hash, err := HashBlock(b, 0)
	require.NoError(t, err)

	sig, err := Sign(priv, hash)
	require.NoError(t, err)

	ok, err := Verify(&priv.PublicKey, hash, sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	priv1, err := GenerateKeyPair()
	require.NoError(t, err)
	priv2, err := GenerateKeyPair()
	require.NoError(t, err)

	b := chaintypes.Genesis(chaintypes.FlavorFinancial)
	hash, err := HashBlock(b, 0)
	require.NoError(t, err)

	sig, err := Sign(priv1, hash)
	require.NoError(t, err)

	ok, err := Verify(&priv2.PublicKey, hash, sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashBlockDeterministic(t *testing.T) {
	b1 := chaintypes.Genesis(chaintypes.FlavorFinancial)
	b2 := chaintypes.Genesis(chaintypes.FlavorFinancial)

	h1, err := HashBlock(b1, 0)
	require.NoError(t, err)
	h2, err := HashBlock(b2, 0)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestHashBlockOrderIndependentOverTxMap(t *testing.T) {
	tx1 := &chaintypes.FinancialTx{Uid: []byte("tx-a")}
	tx2 := &chaintypes.FinancialTx{Uid: []byte("tx-b")}

	b1 := chaintypes.Genesis(chaintypes.FlavorFinancial)
	b1.TxMap[tx1.Digest()] = tx1
	b1.TxMap[tx2.Digest()] = tx2

	b2 := chaintypes.Genesis(chaintypes.FlavorFinancial)
	b2.TxMap[tx2.Digest()] = tx2
	b2.TxMap[tx1.Digest()] = tx1

	h1, err := HashBlock(b1, 0)
	require.NoError(t, err)
	h2, err := HashBlock(b2, 0)
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "digest ordering must not affect the block hash")
}

func TestNodeDIDRoundTrip(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)

	did, err := NodeDID(&priv.PublicKey)
	require.NoError(t, err)
	assert.Contains(t, did, "did:key:")

	raw, err := ParseNodeDID(did)
	require.NoError(t, err)

	pub, err := UnmarshalPublicKey(raw)
	require.NoError(t, err)
	assert.Equal(t, priv.PublicKey.X, pub.X)
	assert.Equal(t, priv.PublicKey.Y, pub.Y)
}

func TestDeriveAddressHashLength(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)
	raw, err := MarshalPublicKey(&priv.PublicKey)
	require.NoError(t, err)

	h, err := DeriveAddressHash(raw)
	require.NoError(t, err)
	assert.Len(t, h, PublicKeyHashLength)
}

func TestRegistryLookupAndVerify(t *testing.T) {
	priv, err := GenerateKeyPair()
	require.NoError(t, err)
	addr := chaintypes.Address{Host: "127.0.0.1", Port: 9000}

	reg := NewRegistry()
	_, err = reg.Lookup(addr)
	assert.ErrorIs(t, err, ErrUnknownSigner)

	reg.WritePublicKey(addr, &priv.PublicKey)

	b := chaintypes.Genesis(chaintypes.FlavorFinancial)
	hash, err := HashBlock(b, 0)
	require.NoError(t, err)
	sig, err := Sign(priv, hash)
	require.NoError(t, err)

	ok, err := reg.VerifySignature(addr, hash, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reg.VerifySignature(chaintypes.Address{Host: "nobody", Port: 1}, hash, sig)
	require.NoError(t, err)
	assert.False(t, ok)
}
