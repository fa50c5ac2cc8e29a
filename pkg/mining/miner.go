// Package mining implements the proof-of-work mining loop: it
// snapshots the chain tip, mines without holding the chain lock, and
// restarts whenever the tip moves out from under it.
package mining

import (
	"sync"
	"time"

	"github.com/pouria-shahmiri/p2pcoin/pkg/chain"
	"github.com/pouria-shahmiri/p2pcoin/pkg/cryptoutil"
	"github.com/pouria-shahmiri/p2pcoin/pkg/logging"
	"github.com/pouria-shahmiri/p2pcoin/pkg/mempool"
	"github.com/pouria-shahmiri/p2pcoin/pkg/types"
)

var log = logging.For("mining")

// batchSize is the number of mempool transactions pulled into each
// mining attempt.
const batchSize = 4

// Broadcaster is the subset of protocol.Router the miner needs.
type Broadcaster interface {
	SubmitBlock(block types.Block)
}

// Engine is the MiningEngine. Mining is cooperatively suspendable via
// Suspend/Resume, backed by a condition variable.
type Engine struct {
	chain   *chain.Chain
	mempool *mempool.Mempool
	router  Broadcaster

	mu      sync.Mutex
	cond    *sync.Cond
	allowed bool

	quit chan struct{}
	once sync.Once
}

// New creates a MiningEngine. Mining starts suspended; call Resume to
// begin.
func New(c *chain.Chain, mp *mempool.Mempool, router Broadcaster) *Engine {
	e := &Engine{chain: c, mempool: mp, router: router, quit: make(chan struct{})}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Resume allows mining to proceed and wakes the loop if it was
// blocked waiting.
func (e *Engine) Resume() {
	e.mu.Lock()
	e.allowed = true
	e.mu.Unlock()
	e.cond.Broadcast()
}

// Suspend stops mining after the current nonce attempt.
func (e *Engine) Suspend() {
	e.mu.Lock()
	e.allowed = false
	e.mu.Unlock()
}

// Stop terminates the mining loop for good.
func (e *Engine) Stop() {
	e.once.Do(func() {
		close(e.quit)
		e.cond.Broadcast()
	})
}

// waitUntilAllowed blocks on the condition variable while mining is
// suspended. It returns false if the engine was stopped while waiting.
func (e *Engine) waitUntilAllowed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for !e.allowed {
		select {
		case <-e.quit:
			return false
		default:
		}
		e.cond.Wait()
	}
	return true
}

func (e *Engine) isAllowed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allowed
}

func (e *Engine) stopped() bool {
	select {
	case <-e.quit:
		return true
	default:
		return false
	}
}

// Run drives the mining loop until Stop is called. It is intended to
// be invoked as `go engine.Run()`.
func (e *Engine) Run() {
	for {
		if e.stopped() {
			return
		}
		if !e.waitUntilAllowed() {
			return
		}

		e.chain.EnsureGenesis()
		e.attempt()
	}
}

// attempt runs exactly one mining pass: pull a batch, snapshot the
// tip, search for a valid nonce, and either submit a mined block or
// return the batch to the mempool.
func (e *Engine) attempt() {
	batch := e.mempool.PopBatch(batchSize)

	tip, err := e.chain.Tip()
	if err != nil {
		e.mempool.Return(batch)
		time.Sleep(100 * time.Millisecond)
		return
	}
	startVersion := e.chain.Version()

	block := &types.Block{
		Id:           tip.Id + 1,
		TimeCreate:   time.Now().Unix(),
		Transactions: batch,
		PreviousHash: tip.Hash,
		Nonce:        0,
	}

	for nonce := uint64(0); ; nonce++ {
		block.Nonce = nonce

		valid, err := cryptoutil.ValidPoW(block)
		if err != nil {
			log.Errorf("hash error while mining: %v", err)
			e.mempool.Return(batch)
			return
		}

		if valid {
			if addErr := e.chain.Add(block, false); addErr != nil {
				log.Warnf("mined block rejected: %v", addErr)
				e.mempool.Return(batch)
				return
			}
			log.WithField("id", block.Id).Info("block mined")
			e.router.SubmitBlock(*block)
			return
		}

		if !e.isAllowed() || e.stopped() {
			e.mempool.Return(batch)
			return
		}
		if e.chain.Version() != startVersion {
			e.mempool.Return(batch)
			return
		}
	}
}
