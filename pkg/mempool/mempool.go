// Package mempool implements the priority queue of pending
// transactions. Transactions are ordered by Transfer descending; ties
// are broken arbitrarily.
package mempool

import (
	"container/heap"
	"sync"

	"github.com/pouria-shahmiri/p2pcoin/pkg/logging"
	"github.com/pouria-shahmiri/p2pcoin/pkg/types"
)

var log = logging.For("mempool")

// entry wraps a transaction with its heap index, kept current by Push
// and Swap. RemoveAll does not use the index: it filters the entries
// and rebuilds the heap.
type entry struct {
	tx    types.Transaction
	index int
}

// txHeap is a max-heap on Transfer, implementing container/heap.Interface.
type txHeap []*entry

func (h txHeap) Len() int            { return len(h) }
func (h txHeap) Less(i, j int) bool  { return h[i].tx.Transfer > h[j].tx.Transfer }
func (h txHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *txHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *txHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Mempool is the priority queue of well-formed, not-yet-mined
// transactions. All exported operations are safe for concurrent use.
type Mempool struct {
	mu sync.Mutex
	h  txHeap
}

// New creates an empty mempool.
func New() *Mempool {
	m := &Mempool{h: make(txHeap, 0)}
	heap.Init(&m.h)
	return m
}

// Push inserts a well-formed transaction. Duplicates are allowed to
// coexist.
func (m *Mempool) Push(tx types.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	heap.Push(&m.h, &entry{tx: tx})
	log.WithField("transfer", tx.Transfer).Debug("transaction queued")
}

// PopBatch removes and returns up to k highest-Transfer transactions.
// Called by the miner at the top of every attempt.
func (m *Mempool) PopBatch(k int) []types.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := k
	if n > m.h.Len() {
		n = m.h.Len()
	}

	batch := make([]types.Transaction, 0, n)
	for i := 0; i < n; i++ {
		e := heap.Pop(&m.h).(*entry)
		batch = append(batch, e.tx)
	}
	return batch
}

// Return re-enqueues a batch the miner could not use — tip changed,
// mining was suspended, or Chain.Add rejected the candidate.
func (m *Mempool) Return(batch []types.Transaction) {
	for _, tx := range batch {
		m.Push(tx)
	}
}

// RemoveAll drops every mempool transaction that is byte-equal to one
// of the given transactions — called once a block containing them is
// accepted.
func (m *Mempool) RemoveAll(mined []types.Transaction) {
	if len(mined) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := make(txHeap, 0, m.h.Len())
	for _, e := range m.h {
		minedTx := false
		for _, tx := range mined {
			if e.tx.Equal(tx) {
				minedTx = true
				break
			}
		}
		if !minedTx {
			kept = append(kept, e)
		}
	}

	m.h = kept
	heap.Init(&m.h)
}

// Len reports the number of pending transactions.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.h.Len()
}
