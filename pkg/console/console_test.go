package console

import (
	"path/filepath"
	"testing"

	"github.com/pouria-shahmiri/p2pcoin/pkg/chain"
	"github.com/pouria-shahmiri/p2pcoin/pkg/types"
	"github.com/pouria-shahmiri/p2pcoin/pkg/wallet"
)

type fakeBroadcaster struct {
	txs  []types.Transaction
	text []string
}

func (f *fakeBroadcaster) SubmitTransaction(tx types.Transaction) {
	f.txs = append(f.txs, tx)
}

func (f *fakeBroadcaster) SubmitText(message string) {
	f.text = append(f.text, message)
}

func TestSubmitTransactionSignsAndForwards(t *testing.T) {
	w, err := wallet.Generate(filepath.Join(t.TempDir(), "wallet.key"), "")
	if err != nil {
		t.Fatalf("generate wallet failed: %v", err)
	}
	c := chain.New(nil, nil)
	c.EnsureGenesis()

	b := &fakeBroadcaster{}
	console := New(b, w, c)

	if err := console.SubmitTransaction("buyer", "seller", "hi", 3); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if len(b.txs) != 1 {
		t.Fatalf("expected exactly one submitted transaction, got %d", len(b.txs))
	}
	if b.txs[0].Sender != w.PublicKeyB64() {
		t.Fatalf("expected transaction signed by the console's wallet")
	}
}

func TestBroadcastForwardsText(t *testing.T) {
	w, err := wallet.Generate(filepath.Join(t.TempDir(), "wallet.key"), "")
	if err != nil {
		t.Fatalf("generate wallet failed: %v", err)
	}
	c := chain.New(nil, nil)
	c.EnsureGenesis()

	b := &fakeBroadcaster{}
	console := New(b, w, c)
	console.Broadcast("hello network")

	if len(b.text) != 1 || b.text[0] != "hello network" {
		t.Fatalf("expected the message to be forwarded verbatim, got %v", b.text)
	}
}

func TestChainLengthReflectsChain(t *testing.T) {
	w, err := wallet.Generate(filepath.Join(t.TempDir(), "wallet.key"), "")
	if err != nil {
		t.Fatalf("generate wallet failed: %v", err)
	}
	c := chain.New(nil, nil)
	c.EnsureGenesis()

	console := New(&fakeBroadcaster{}, w, c)
	if console.ChainLength() != c.Len() {
		t.Fatalf("expected ChainLength to mirror the chain's own length")
	}
}
