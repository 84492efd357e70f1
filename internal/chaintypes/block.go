package chaintypes

// GenesisPrevHash is the literal previous-hash value carried by block 0.
const GenesisPrevHash = "000000"

// Block is one entry in the chain. TxMap is keyed by transaction digest;
// insertion order is irrelevant to the chain's correctness.
type Block struct {
	BlockID             uint64
	PrevHash            string
	TxMap               map[[32]byte]Transaction
	MerkleRoot          string
	IntervalValidations map[int]bool
	AllValid            bool
}

// Genesis builds block 0 for the given flavor. Financial genesis has no
// interval fields; ML genesis carries an empty interval map with AllValid
// true per the spec's genesis contract.
func Genesis(flavor TxFlavor) *Block {
	b := &Block{
		BlockID:  0,
		PrevHash: GenesisPrevHash,
		TxMap:    make(map[[32]byte]Transaction),
	}
	if flavor == FlavorML {
		b.IntervalValidations = make(map[int]bool)
		b.AllValid = true
	}
	return b
}

// Digests returns the block's transaction digests in no particular order;
// callers that need a stable order (e.g. the Merkle tree) sort the result.
func (b *Block) Digests() [][32]byte {
	out := make([][32]byte, 0, len(b.TxMap))
	for d := range b.TxMap {
		out = append(out, d)
	}
	return out
}

// BlockSignature is one quorum member's signature over a block's hash.
type BlockSignature struct {
	Signer    Address
	BlockHash string
	Sig       []byte
}

// BlockSkeleton is the compact commit record gossiped to non-quorum peers
// so they can reconstruct the committed block from their own mempool.
type BlockSkeleton struct {
	BlockID             uint64
	TxDigests           [][32]byte
	Sigs                []BlockSignature
	BlockHash           string
	IntervalValidations map[int]bool
	AllValid            bool
}
