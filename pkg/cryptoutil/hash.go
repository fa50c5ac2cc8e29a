package cryptoutil

import (
	"crypto/sha512"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/pouria-shahmiri/p2pcoin/pkg/types"
)

// canonicalBlock is the exact tuple hashed into a block's identity.
// Field order is fixed so that two processes hash the same block to
// the same hex string.
type canonicalBlock struct {
	Id           uint64              `json:"id"`
	Transactions []types.Transaction `json:"transactions"`
	PreviousHash string              `json:"previous_hash"`
	Nonce        uint64              `json:"nonce"`
}

// HashBlock computes the hex-encoded SHA-512 hash of a block's
// canonical (id, transactions, previous_hash, nonce) tuple.
func HashBlock(b *types.Block) (string, error) {
	c := canonicalBlock{
		Id:           b.Id,
		Transactions: b.Transactions,
		PreviousHash: b.PreviousHash,
		Nonce:        b.Nonce,
	}

	data, err := json.Marshal(c)
	if err != nil {
		return "", errors.Wrap(err, "marshal canonical block")
	}

	sum := sha512.Sum512(data)
	return fmt.Sprintf("%x", sum), nil
}

// HashString returns the hex-encoded SHA-512 hash of an arbitrary
// string, used for the genesis PreviousHash.
func HashString(s string) string {
	sum := sha512.Sum512([]byte(s))
	return fmt.Sprintf("%x", sum)
}

// SatisfiesDifficulty reports whether hash begins with the required
// number of leading hex '0' characters.
func SatisfiesDifficulty(hash string) bool {
	if len(hash) < types.Difficulty {
		return false
	}
	return strings.Count(hash[:types.Difficulty], "0") == types.Difficulty
}

// ValidPoW hashes the block and checks the difficulty predicate.
func ValidPoW(b *types.Block) (bool, error) {
	hash, err := HashBlock(b)
	if err != nil {
		return false, err
	}
	return SatisfiesDifficulty(hash), nil
}

// GenesisBlock constructs the fixed genesis block every chain starts from.
func GenesisBlock() *types.Block {
	return &types.Block{
		Id:           1,
		TimeCreate:   0,
		Transactions: []types.Transaction{},
		PreviousHash: HashString(types.GenesisMessage),
		Nonce:        0,
	}
}
