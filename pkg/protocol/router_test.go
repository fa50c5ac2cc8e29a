package protocol

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pouria-shahmiri/p2pcoin/pkg/cryptoutil"
	"github.com/pouria-shahmiri/p2pcoin/pkg/types"
)

type fakePool struct {
	mu        sync.Mutex
	broadcast []string
}

func (p *fakePool) Broadcast(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broadcast = append(p.broadcast, line)
}

func (p *fakePool) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.broadcast)
}

type fakeChain struct {
	mu      sync.Mutex
	added   []*types.Block
	replace bool
}

func (c *fakeChain) Add(block *types.Block, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.added = append(c.added, block)
	return nil
}
func (c *fakeChain) Replace(blocks []*types.Block) (bool, error) { return c.replace, nil }
func (c *fakeChain) LastN(n int) []*types.Block                  { return nil }
func (c *fakeChain) Before(t int64) []*types.Block               { return nil }
func (c *fakeChain) FromGenesis() []*types.Block                 { return nil }

type fakeMempool struct {
	mu     sync.Mutex
	pushed []types.Transaction
}

func (m *fakeMempool) Push(tx types.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushed = append(m.pushed, tx)
}

func newTestRouter() (*Router, *fakePool, *fakeChain, *fakeMempool) {
	pool := &fakePool{}
	chain := &fakeChain{}
	mp := &fakeMempool{}
	r := NewRouter(pool, nil, chain, mp, nil, nil, 0)
	return r, pool, chain, mp
}

func TestHandleRawDuplicateIsDropped(t *testing.T) {
	r, pool, chain, _ := newTestRouter()
	r.Run()
	defer r.Stop()

	block := types.Block{Id: 2, PreviousHash: "x"}
	line, err := Encode(TagResponseBlock, ResponseBlockMessage{Id: 1, Block: block, TimeStamp: 1})
	require.NoError(t, err)

	r.HandleRawMessage(trimNewline(line))
	r.HandleRawMessage(trimNewline(line))

	require.Eventually(t, func() bool {
		chain.mu.Lock()
		defer chain.mu.Unlock()
		return len(chain.added) == 1
	}, time.Second, 10*time.Millisecond)

	require.Equal(t, 1, pool.count())
}

func TestResponseTransactionRequiresValidSignature(t *testing.T) {
	r, _, _, mp := newTestRouter()
	r.Run()
	defer r.Stop()

	bad := types.Transaction{Sender: "not-a-real-key", Message: "x", Transfer: 1, Signature: "sig"}
	line, err := Encode(TagResponseTransaction, ResponseTransactionMessage{Id: 1, Transaction: bad, TimeStamp: 1})
	require.NoError(t, err)
	r.HandleRawMessage(trimNewline(line))

	time.Sleep(50 * time.Millisecond)
	mp.mu.Lock()
	defer mp.mu.Unlock()
	require.Empty(t, mp.pushed, "an unverifiable signature must never reach the mempool")
}

func TestResponseTransactionAcceptsValidSignature(t *testing.T) {
	r, _, _, mp := newTestRouter()
	r.Run()
	defer r.Stop()

	priv, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	senderB64, err := cryptoutil.EncodePublicKeyB64(&priv.PublicKey)
	require.NoError(t, err)
	sig, err := cryptoutil.SignTransaction(priv, senderB64, "hello", 2)
	require.NoError(t, err)

	tx := types.Transaction{Sender: senderB64, Message: "hello", Transfer: 2, Signature: sig}
	line, err := Encode(TagResponseTransaction, ResponseTransactionMessage{Id: 1, Transaction: tx, TimeStamp: 1})
	require.NoError(t, err)
	r.HandleRawMessage(trimNewline(line))

	require.Eventually(t, func() bool {
		mp.mu.Lock()
		defer mp.mu.Unlock()
		return len(mp.pushed) == 1
	}, time.Second, 10*time.Millisecond)
}

func trimNewline(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\n' {
		return s[:len(s)-1]
	}
	return s
}
