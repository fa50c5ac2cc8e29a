// Package archive implements a durable, idempotent, best-effort store
// of accepted blocks. Archive failures must never corrupt in-memory
// chain state.
package archive

import (
	"database/sql"
	"encoding/json"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/pouria-shahmiri/p2pcoin/pkg/logging"
	"github.com/pouria-shahmiri/p2pcoin/pkg/types"
)

var log = logging.For("archive")

const schema = `
CREATE TABLE IF NOT EXISTS blocks (
	id INTEGER PRIMARY KEY,
	time_create INTEGER NOT NULL,
	previous_hash TEXT NOT NULL,
	nonce INTEGER NOT NULL,
	transactions_json TEXT NOT NULL
);`

// Archive is a SQLite-backed BlockArchive.
type Archive struct {
	db *sql.DB
}

// Open opens (and, if necessary, creates) the archive database at path.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open archive database")
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create archive schema")
	}

	return &Archive{db: db}, nil
}

// Close releases the underlying database handle.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Insert durably stores a block, called after a successful
// Chain.add. Idempotent: re-inserting the same id replaces its row.
func (a *Archive) Insert(block *types.Block) error {
	txsJSON, err := json.Marshal(block.Transactions)
	if err != nil {
		return errors.Wrap(err, "marshal transactions")
	}

	_, err = a.db.Exec(
		`INSERT OR REPLACE INTO blocks (id, time_create, previous_hash, nonce, transactions_json)
		 VALUES (?, ?, ?, ?, ?)`,
		block.Id, block.TimeCreate, block.PreviousHash, block.Nonce, string(txsJSON),
	)
	if err != nil {
		return errors.Wrap(err, "insert block")
	}
	return nil
}

// InsertBestEffort stores a block and only logs on failure: archive
// errors never propagate to the chain.
func (a *Archive) InsertBestEffort(block *types.Block) {
	if err := a.Insert(block); err != nil {
		log.WithField("id", block.Id).Warnf("archive write failed: %v", err)
	}
}

// Load reads every archived block back in height order, used to
// reconstruct the chain on restart.
func (a *Archive) Load() ([]*types.Block, error) {
	rows, err := a.db.Query(
		`SELECT id, time_create, previous_hash, nonce, transactions_json FROM blocks ORDER BY id ASC`,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query blocks")
	}
	defer rows.Close()

	var blocks []*types.Block
	for rows.Next() {
		var b types.Block
		var txsJSON string
		if err := rows.Scan(&b.Id, &b.TimeCreate, &b.PreviousHash, &b.Nonce, &txsJSON); err != nil {
			return nil, errors.Wrap(err, "scan block row")
		}
		if err := json.Unmarshal([]byte(txsJSON), &b.Transactions); err != nil {
			return nil, errors.Wrap(err, "unmarshal transactions")
		}
		blocks = append(blocks, &b)
	}
	return blocks, rows.Err()
}
