package mempool

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"supernova.dev/node/consensus"
)

// entryFixture builds a pooled entry without going through Accept, for
// white-box index and template tests.
func entryFixture(m *Mempool, seed byte, fee, weight uint64, parents ...*Entry) *Entry {
	tx := &consensus.Tx{
		Version: 2,
		Inputs: []consensus.TxIn{{
			Prev:     consensus.OutPoint{TxID: consensus.Hash{seed}, Vout: 0},
			Sequence: 0xfffffffe,
		}},
		Outputs: []consensus.TxOut{{Value: 1_000, ScriptPubKey: []byte{0x00, 0x14, seed, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18}}},
		Locktime: uint32(seed),
	}
	parentSet := make(map[consensus.Hash]struct{})
	for i, p := range parents {
		tx.Inputs = append(tx.Inputs, consensus.TxIn{
			Prev:     consensus.OutPoint{TxID: p.TxID, Vout: uint32(i)},
			Sequence: 0xfffffffe,
		})
		parentSet[p.TxID] = struct{}{}
	}
	rate, _ := feeRatePerKW(fee, weight)
	m.arrivalSeq++
	e := &Entry{
		Tx:      tx,
		TxID:    tx.TxID(),
		Fee:     fee,
		Weight:  weight,
		Size:    weight / 4,
		FeeRate: rate,
		Arrival: m.arrivalSeq,
		parents: parentSet,
	}
	m.addLocked(e)
	return e
}

func testPool() *Mempool {
	return New(Config{}, nil, nil, zerolog.Nop())
}

func TestSnapshot_FeeRateOrderArrivalTie(t *testing.T) {
	m := testPool()
	low := entryFixture(m, 1, 400, 400)    // 1000 per kW
	high := entryFixture(m, 2, 2_500, 400) // 6250 per kW
	tieA := entryFixture(m, 3, 800, 400)   // 2000 per kW, earlier arrival
	tieB := entryFixture(m, 4, 800, 400)   // 2000 per kW, later arrival

	snap := m.Snapshot()
	require.Equal(t, []consensus.Hash{high.TxID, tieA.TxID, tieB.TxID, low.TxID},
		[]consensus.Hash{snap[0].TxID, snap[1].TxID, snap[2].TxID, snap[3].TxID})
}

func TestNewBlockTemplate_ParentsBeforeChildren(t *testing.T) {
	m := testPool()
	parent := entryFixture(m, 1, 400, 400)         // low fee rate
	child := entryFixture(m, 2, 4_000, 400, parent) // high fee rate, depends on parent

	tpl, err := m.NewBlockTemplate(consensus.MAX_BLOCK_WEIGHT, 2_000)
	require.NoError(t, err)
	require.Len(t, tpl.Transactions, 2)
	require.Equal(t, parent.TxID, tpl.Transactions[0].TxID())
	require.Equal(t, child.TxID, tpl.Transactions[1].TxID())
	require.Equal(t, parent.Fee+child.Fee, tpl.TotalFees)
}

func TestNewBlockTemplate_RespectsWeightBudget(t *testing.T) {
	m := testPool()
	entryFixture(m, 1, 10_000, 3_000)
	entryFixture(m, 2, 9_000, 3_000)
	entryFixture(m, 3, 100, 500)

	tpl, err := m.NewBlockTemplate(5_000, 1_000)
	require.NoError(t, err)
	require.LessOrEqual(t, tpl.TotalWeight, uint64(4_000))
	// Highest fee rate fits; the second 3000-weight entry does not; the
	// small cheap one still does.
	require.Len(t, tpl.Transactions, 2)
}

func TestEviction_LowestFeeRateWithDescendants(t *testing.T) {
	m := testPool()
	m.cfg.MaxBytes = 300
	cheap := entryFixture(m, 1, 100, 4_000)        // size 1000, lowest rate
	child := entryFixture(m, 2, 8_000, 400, cheap) // size 100, high rate
	rich := entryFixture(m, 3, 8_000, 800)         // size 200

	m.evictForSizeLocked()

	require.False(t, m.haveLocked(cheap.TxID), "lowest fee rate must be evicted")
	require.False(t, m.haveLocked(child.TxID), "descendant must follow its parent out")
	require.True(t, m.haveLocked(rich.TxID))
}

func (m *Mempool) haveLocked(txid consensus.Hash) bool {
	_, ok := m.pool[txid]
	return ok
}

func TestRemoveConfirmed_DropsDoubleSpenders(t *testing.T) {
	m := testPool()
	a := entryFixture(m, 1, 1_000, 400)

	// A block confirms a different transaction spending the same outpoint.
	confirmed := &consensus.Tx{
		Version: 2,
		Inputs: []consensus.TxIn{{
			Prev:     a.Tx.Inputs[0].Prev,
			Sequence: 0xffffffff,
		}},
		Outputs: []consensus.TxOut{{Value: 500, ScriptPubKey: []byte{0x51}}},
	}
	blk := &consensus.Block{Transactions: []*consensus.Tx{confirmed}}
	m.RemoveConfirmed(blk)
	require.Zero(t, m.Count())
}

func TestPeerLimiter_Throttles(t *testing.T) {
	l := newPeerLimiter()
	now := time.Unix(1_000, 0)

	// The burst budget admits the first peerTxPerSecond*peerBurstSeconds
	// submissions, then throttles.
	admitted := 0
	for i := 0; i < peerTxPerSecond*peerBurstSeconds+10; i++ {
		if l.allow("peer-1", 100, now) {
			admitted++
		}
	}
	require.Equal(t, peerTxPerSecond*peerBurstSeconds, admitted)

	// Refill after a second admits more.
	require.True(t, l.allow("peer-1", 100, now.Add(time.Second)))

	// Local submissions bypass the limiter.
	require.True(t, l.allow("", 1<<30, now))
}
