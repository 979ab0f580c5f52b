package mempool

import (
	"sync"
	"time"
)

// Per-peer submission limits: a refilling budget of transactions per second
// and bytes per second. A peer that exhausts either is throttled until the
// window refills; the pool itself stays unaffected.
const (
	peerTxPerSecond    = 20
	peerBytesPerSecond = 1 << 20
	peerBurstSeconds   = 5
)

type peerBucket struct {
	txTokens   float64
	byteTokens float64
	lastRefill time.Time
}

type peerLimiter struct {
	mu      sync.Mutex
	buckets map[string]*peerBucket
}

func newPeerLimiter() *peerLimiter {
	return &peerLimiter{buckets: make(map[string]*peerBucket)}
}

// allow charges one transaction of the given size to peer and reports
// whether the submission fits its budget. An empty peer name (local
// submissions) is never throttled.
func (l *peerLimiter) allow(peer string, size uint64, now time.Time) bool {
	if peer == "" {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[peer]
	if !ok {
		b = &peerBucket{
			txTokens:   peerTxPerSecond * peerBurstSeconds,
			byteTokens: peerBytesPerSecond * peerBurstSeconds,
			lastRefill: now,
		}
		l.buckets[peer] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.txTokens = min(b.txTokens+elapsed*peerTxPerSecond, peerTxPerSecond*peerBurstSeconds)
		b.byteTokens = min(b.byteTokens+elapsed*peerBytesPerSecond, peerBytesPerSecond*peerBurstSeconds)
		b.lastRefill = now
	}

	if b.txTokens < 1 || b.byteTokens < float64(size) {
		return false
	}
	b.txTokens--
	b.byteTokens -= float64(size)
	return true
}
