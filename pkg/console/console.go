// Package console defines the minimal surface an operator REPL needs
// to submit work to the node. It has no privileged access: every call
// goes through the same outbound path an engine would use.
package console

import (
	"github.com/pouria-shahmiri/p2pcoin/pkg/chain"
	"github.com/pouria-shahmiri/p2pcoin/pkg/types"
	"github.com/pouria-shahmiri/p2pcoin/pkg/wallet"
)

// Broadcaster is the subset of protocol.Router the console needs.
type Broadcaster interface {
	SubmitTransaction(tx types.Transaction)
	SubmitText(message string)
}

// Console is the façade a future interactive REPL would drive.
type Console struct {
	router Broadcaster
	wallet *wallet.Wallet
	chain  *chain.Chain
}

// New creates a Console bound to the node's wallet, chain and router.
func New(router Broadcaster, w *wallet.Wallet, c *chain.Chain) *Console {
	return &Console{router: router, wallet: w, chain: c}
}

// SubmitTransaction builds a transaction from (buyer, seller, message,
// transfer), signs it with the node's wallet and broadcasts it. The
// signature covers only the sender, message and transfer.
func (c *Console) SubmitTransaction(buyer, seller, message string, transfer float64) error {
	tx, err := c.wallet.Sign(buyer, seller, message, transfer)
	if err != nil {
		return err
	}
	c.router.SubmitTransaction(tx)
	return nil
}

// Broadcast sends free-form operator text to the network.
func (c *Console) Broadcast(message string) {
	c.router.SubmitText(message)
}

// ChainLength reports the current local chain length.
func (c *Console) ChainLength() int {
	return c.chain.Len()
}
