package txscript

import (
	"crypto/sha256"
	"encoding/binary"

	lru "github.com/hashicorp/golang-lru/v2"

	"supernova.dev/node/consensus"
)

// DefaultSigCacheSize is the default entry capacity.
const DefaultSigCacheSize = 100_000

// SigCacheKey identifies one verified signature: the hash binds the txid,
// input index, sighash digest, public key and signature together, so a hit
// implies the exact same check already passed.
type SigCacheKey [32]byte

// NewSigCacheKey derives the cache key for a signature check.
func NewSigCacheKey(txid consensus.Hash, inputIndex uint32, sighash consensus.Hash, pubkey, sig []byte) SigCacheKey {
	h := sha256.New()
	h.Write(txid[:])
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], inputIndex)
	h.Write(idx[:])
	h.Write(sighash[:])
	h.Write(pubkey)
	h.Write(sig)
	var key SigCacheKey
	copy(key[:], h.Sum(nil))
	return key
}

// SigCache remembers signatures that verified successfully. It only ever
// accelerates repeated positive checks: a miss says nothing, and negative
// results are never stored as consensus decisions. The underlying LRU is
// safe for concurrent use.
type SigCache struct {
	entries *lru.Cache[SigCacheKey, struct{}]
}

// NewSigCache creates a cache holding up to capacity verified signatures.
func NewSigCache(capacity int) (*SigCache, error) {
	if capacity <= 0 {
		capacity = DefaultSigCacheSize
	}
	entries, err := lru.New[SigCacheKey, struct{}](capacity)
	if err != nil {
		return nil, err
	}
	return &SigCache{entries: entries}, nil
}

// Contains reports whether the exact check identified by key has verified
// before.
func (c *SigCache) Contains(key SigCacheKey) bool {
	if c == nil {
		return false
	}
	_, ok := c.entries.Get(key)
	return ok
}

// Add records a successful verification.
func (c *SigCache) Add(key SigCacheKey) {
	if c == nil {
		return
	}
	c.entries.Add(key, struct{}{})
}

// Purge drops every entry. Nothing in the node calls it; entries leave the
// cache only by LRU eviction or when the process exits.
func (c *SigCache) Purge() {
	if c == nil {
		return
	}
	c.entries.Purge()
}

// Len returns the current entry count.
func (c *SigCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
