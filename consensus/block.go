package consensus

import "encoding/binary"

// BlockHeaderSize is the fixed wire size of a header:
// version(4) || prev_hash(32) || merkle_root(32) || timestamp(8) || bits(4) || nonce(4).
const BlockHeaderSize = 84

// MAX_BLOCK_TXS bounds the transaction count a block parser will accept
// before weight rules apply. A minimal transaction is ~60 bytes, so the
// weight cap implies far fewer.
const MAX_BLOCK_TXS = 65_536

// BlockHeader is the 84-byte proof-of-work commitment over a block body.
type BlockHeader struct {
	Version    uint32
	PrevBlock  Hash
	MerkleRoot Hash
	Timestamp  uint64
	Bits       uint32
	Nonce      uint32
}

// Serialize returns the 84-byte wire encoding of h.
func (h *BlockHeader) Serialize() []byte {
	out := make([]byte, 0, BlockHeaderSize)
	out = binary.LittleEndian.AppendUint32(out, h.Version)
	out = append(out, h.PrevBlock[:]...)
	out = append(out, h.MerkleRoot[:]...)
	out = binary.LittleEndian.AppendUint64(out, h.Timestamp)
	out = binary.LittleEndian.AppendUint32(out, h.Bits)
	out = binary.LittleEndian.AppendUint32(out, h.Nonce)
	return out
}

// BlockHash is the double-SHA256 of the serialized header.
func (h *BlockHeader) BlockHash() Hash {
	return DoubleSha256(h.Serialize())
}

// ParseBlockHeader decodes exactly one 84-byte header.
func ParseBlockHeader(b []byte) (*BlockHeader, error) {
	if len(b) != BlockHeaderSize {
		return nil, ruleErr(ERR_PARSE, "header: wrong size")
	}
	off := 0
	var h BlockHeader
	var err error
	if h.Version, err = readU32(b, &off); err != nil {
		return nil, err
	}
	if h.PrevBlock, err = readHash(b, &off); err != nil {
		return nil, err
	}
	if h.MerkleRoot, err = readHash(b, &off); err != nil {
		return nil, err
	}
	if h.Timestamp, err = readU64(b, &off); err != nil {
		return nil, err
	}
	if h.Bits, err = readU32(b, &off); err != nil {
		return nil, err
	}
	if h.Nonce, err = readU32(b, &off); err != nil {
		return nil, err
	}
	return &h, nil
}

// Block pairs a header with its transaction body. Transactions[0] must be
// the coinbase in a valid block.
type Block struct {
	Header       BlockHeader
	Transactions []*Tx
}

// Serialize returns header || varint tx_count || canonical transactions.
func (blk *Block) Serialize() []byte {
	out := blk.Header.Serialize()
	out = AppendCompactSize(out, uint64(len(blk.Transactions)))
	for _, tx := range blk.Transactions {
		out = append(out, tx.Serialize()...)
	}
	return out
}

// ParseBlock decodes a full block, rejecting trailing bytes.
func ParseBlock(b []byte) (*Block, error) {
	if len(b) < BlockHeaderSize {
		return nil, ruleErr(ERR_PARSE, "block: truncated header")
	}
	header, err := ParseBlockHeader(b[:BlockHeaderSize])
	if err != nil {
		return nil, err
	}
	off := BlockHeaderSize
	txCount, err := readCompactSize(b, &off)
	if err != nil {
		return nil, err
	}
	if txCount == 0 || txCount > MAX_BLOCK_TXS {
		return nil, ruleErr(ERR_PARSE, "block: tx count out of range")
	}
	txs := make([]*Tx, 0, txCount)
	for i := uint64(0); i < txCount; i++ {
		tx, err := parseTxAt(b, &off)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if off != len(b) {
		return nil, ruleErr(ERR_PARSE, "block: trailing bytes")
	}
	return &Block{Header: *header, Transactions: txs}, nil
}
