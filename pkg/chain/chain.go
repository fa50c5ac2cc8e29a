// Package chain implements the replicated append-only block chain:
// append/validate, longest-chain fork resolution, and the read-only
// projections the protocol needs.
//
// The chain mutex is held only for the duration of individual
// operations — never across a proof-of-work iteration.
package chain

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/pouria-shahmiri/p2pcoin/pkg/archive"
	"github.com/pouria-shahmiri/p2pcoin/pkg/cryptoutil"
	"github.com/pouria-shahmiri/p2pcoin/pkg/logging"
	"github.com/pouria-shahmiri/p2pcoin/pkg/mempool"
	"github.com/pouria-shahmiri/p2pcoin/pkg/types"
)

var log = logging.For("chain")

// ErrStaleOrForked is returned by Add when the candidate block does
// not extend the current tip.
var ErrStaleOrForked = errors.New("block is stale or forked")

// Tip identifies a chain's head without copying the whole chain.
type Tip struct {
	Id   uint64
	Hash string
}

// Chain owns the in-memory block sequence. All exported methods are
// safe for concurrent use by the protocol thread and the miner.
type Chain struct {
	mu      sync.Mutex
	blocks  []*types.Block
	archive *archive.Archive
	mempool *mempool.Mempool

	// version increments on every accepted block or accepted
	// replacement, letting MiningEngine detect "tip changed" with a
	// cheap comparison instead of holding the lock across a PoW loop.
	version uint64
}

// New creates an empty chain. Genesis is created lazily by
// EnsureGenesis the first time a block is requested or mined against
// an empty chain.
func New(arc *archive.Archive, mp *mempool.Mempool) *Chain {
	return &Chain{archive: arc, mempool: mp}
}

// Restore seeds the chain from previously archived blocks (used on
// startup). Blocks must already be in height order and valid.
func (c *Chain) Restore(blocks []*types.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks = blocks
	atomic.AddUint64(&c.version, 1)
}

// EnsureGenesis creates the genesis block if the chain is empty.
func (c *Chain) EnsureGenesis() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.blocks) == 0 {
		genesis := cryptoutil.GenesisBlock()
		c.blocks = append(c.blocks, genesis)
		atomic.AddUint64(&c.version, 1)
		if c.archive != nil {
			c.archive.InsertBestEffort(genesis)
		}
	}
}

// Version returns the current tip version. The miner snapshots this
// alongside the tip and compares it after every nonce attempt.
func (c *Chain) Version() uint64 {
	return atomic.LoadUint64(&c.version)
}

// Tip returns the current chain head under a short lock.
func (c *Chain) Tip() (Tip, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.blocks) == 0 {
		return Tip{}, errors.New("chain is empty")
	}
	last := c.blocks[len(c.blocks)-1]
	hash, err := cryptoutil.HashBlock(last)
	if err != nil {
		return Tip{}, err
	}
	return Tip{Id: last.Id, Hash: hash}, nil
}

// Len returns the number of blocks in the chain.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.blocks)
}

// Add appends a block. With force=false the block must extend the
// current tip and satisfy PoW; otherwise ErrStaleOrForked is returned
// and the chain is unchanged. With force=true the block is appended
// unconditionally — reserved for use inside Replace, never for a bare
// wire ResponseBlock.
func (c *Chain) Add(block *types.Block, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force {
		if len(c.blocks) == 0 {
			return errors.New("chain is empty — call EnsureGenesis first")
		}

		tip := c.blocks[len(c.blocks)-1]
		tipHash, err := cryptoutil.HashBlock(tip)
		if err != nil {
			return err
		}

		valid, err := cryptoutil.ValidPoW(block)
		if err != nil {
			return err
		}

		if !valid || block.PreviousHash != tipHash || block.Id != tip.Id+1 {
			return ErrStaleOrForked
		}
	}

	c.blocks = append(c.blocks, block)
	atomic.AddUint64(&c.version, 1)

	if c.archive != nil {
		c.archive.InsertBestEffort(block)
	}
	if c.mempool != nil {
		c.mempool.RemoveAll(block.Transactions)
	}

	log.WithField("id", block.Id).Info("block accepted")
	return nil
}

// Replace validates candidate against the longest-valid-chain rule
// and, if it wins, swaps it in. Validation walks the whole candidate
// from genesis: the first block must match the local genesis, and
// every later block must have a contiguous id, previous-hash linkage
// to its predecessor and satisfy the PoW predicate. Validating
// only a divergent suffix would let a malicious peer splice an
// invalid prefix onto a few honest-looking tail blocks, so the whole
// chain is checked every time.
func (c *Chain) Replace(candidate []*types.Block) (bool, error) {
	if len(candidate) == 0 {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.blocks) > 0 && len(candidate) <= len(c.blocks) {
		return false, nil
	}

	if err := validateChain(candidate); err != nil {
		log.Warnf("rejected replacement chain: %v", err)
		return false, nil
	}

	var mined []types.Transaction
	for _, b := range candidate {
		mined = append(mined, b.Transactions...)
	}

	c.blocks = candidate
	atomic.AddUint64(&c.version, 1)

	if c.mempool != nil {
		c.mempool.RemoveAll(mined)
	}
	if c.archive != nil {
		for _, b := range candidate {
			c.archive.InsertBestEffort(b)
		}
	}

	log.WithField("id", candidate[len(candidate)-1].Id).Info("chain replaced")
	return true, nil
}

// validateChain checks genesis linkage, PoW, and id contiguity across
// an entire candidate chain.
func validateChain(blocks []*types.Block) error {
	if blocks[0].Id != 1 {
		return errors.New("candidate chain does not start at genesis")
	}

	var prevHash string
	for i, b := range blocks {
		if i == 0 {
			expected := cryptoutil.GenesisBlock()
			if b.PreviousHash != expected.PreviousHash || b.Nonce != expected.Nonce || len(b.Transactions) != 0 {
				return errors.New("candidate genesis does not match local genesis")
			}
		} else {
			if b.Id != blocks[i-1].Id+1 {
				return errors.New("candidate chain ids are not contiguous")
			}
			if b.PreviousHash != prevHash {
				return errors.New("candidate chain linkage broken")
			}
			valid, err := cryptoutil.ValidPoW(b)
			if err != nil {
				return err
			}
			if !valid {
				return errors.New("candidate block fails proof of work")
			}
		}

		hash, err := cryptoutil.HashBlock(b)
		if err != nil {
			return err
		}
		prevHash = hash
	}

	return nil
}

// LastN returns the most recent n blocks (oldest first), for
// RequestLastNBlocks.
func (c *Chain) LastN(n int) []*types.Block {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n > len(c.blocks) {
		n = len(c.blocks)
	}
	out := make([]*types.Block, n)
	copy(out, c.blocks[len(c.blocks)-n:])
	return out
}

// Before returns every block created at or before timestamp t.
func (c *Chain) Before(t int64) []*types.Block {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*types.Block
	for _, b := range c.blocks {
		if b.TimeCreate <= t {
			out = append(out, b)
		}
	}
	return out
}

// FromGenesis returns a copy of the entire chain.
func (c *Chain) FromGenesis() []*types.Block {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*types.Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}
