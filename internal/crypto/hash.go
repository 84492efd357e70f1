package crypto

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"github.com/empower1/quorumnode/internal/chaintypes"
)

// HashBlock computes the deterministic hex digest used both to chain
// blocks together (nonce 0) and as the quorum-derivation seed material.
// It hashes a canonical encoding of the block's ordered fields so that
// every honest node produces the identical digest for identical content.
func HashBlock(b *chaintypes.Block, nonce uint64) (string, error) {
	var buf bytes.Buffer

	var nonceBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], nonce)
	buf.Write(nonceBuf[:])

	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], b.BlockID)
	buf.Write(idBuf[:])

	buf.WriteString(b.PrevHash)

	digests := b.Digests()
	sort.Slice(digests, func(i, j int) bool {
		return bytes.Compare(digests[i][:], digests[j][:]) < 0
	})
	for _, d := range digests {
		buf.Write(d[:])
	}

	if b.IntervalValidations != nil {
		idxs := make([]int, 0, len(b.IntervalValidations))
		for idx := range b.IntervalValidations {
			idxs = append(idxs, idx)
		}
		sort.Ints(idxs)
		for _, idx := range idxs {
			var idxBuf [8]byte
			binary.BigEndian.PutUint64(idxBuf[:], uint64(idx))
			buf.Write(idxBuf[:])
			if b.IntervalValidations[idx] {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		}
		if b.AllValid {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	}

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}
