package cryptoutil

import "github.com/pouria-shahmiri/p2pcoin/pkg/types"

// VerifyTransaction reports whether tx carries a well-formed
// signature under its declared sender key.
func VerifyTransaction(tx types.Transaction) (bool, error) {
	return VerifyTransactionSignature(tx.Sender, tx.Message, tx.Transfer, tx.Signature)
}
