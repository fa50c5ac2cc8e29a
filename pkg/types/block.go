package types

// GenesisMessage is hashed to produce the genesis block's PreviousHash.
const GenesisMessage = "First block"

// Difficulty is the number of leading hex '0' characters a valid
// block hash must carry, the proof-of-work target.
const Difficulty = 3

// Block is a single entry in the chain. Id is the 1-based height;
// genesis has Id == 1. The hash of a block is SHA-512 over a
// canonical rendering of (Id, Transactions, PreviousHash, Nonce) —
// see pkg/cryptoutil.HashBlock.
type Block struct {
	Id           uint64        `json:"id"`
	TimeCreate   int64         `json:"time_create"`
	Transactions []Transaction `json:"transactions"`
	PreviousHash string        `json:"previous_hash"`
	Nonce        uint64        `json:"nonce"`
}

// ContainsTransaction reports whether tx is byte-equal to one of the
// block's transactions.
func (b *Block) ContainsTransaction(tx Transaction) bool {
	for _, t := range b.Transactions {
		if t.Equal(tx) {
			return true
		}
	}
	return false
}
