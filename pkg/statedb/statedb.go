// Package statedb persists small pieces of node state — the gossip
// dedup counter and the last-known peer set — across restarts, so a
// restarted node avoids re-accepting gossip it has already processed.
package statedb

import (
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
)

var (
	keyLastMessageID = []byte("last_message_id")
	keyKnownPeers    = []byte("known_peers")
)

// StateDB wraps a LevelDB handle for node metadata.
type StateDB struct {
	db *leveldb.DB
}

// Open opens (and creates, if absent) the state database at path.
func Open(path string) (*StateDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open state database")
	}
	return &StateDB{db: db}, nil
}

// Close releases the underlying database handle.
func (s *StateDB) Close() error {
	return s.db.Close()
}

// LoadLastMessageID returns the persisted dedup counter, or 0 if none
// was ever saved (cold start).
func (s *StateDB) LoadLastMessageID() (uint64, error) {
	data, err := s.db.Get(keyLastMessageID, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "load last message id")
	}
	return binary.BigEndian.Uint64(data), nil
}

// SaveLastMessageID persists the current dedup counter.
func (s *StateDB) SaveLastMessageID(id uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return errors.Wrap(s.db.Put(keyLastMessageID, buf, nil), "save last message id")
}

// LoadKnownPeers returns the peer addresses seen in the previous run.
func (s *StateDB) LoadKnownPeers() ([]string, error) {
	data, err := s.db.Get(keyKnownPeers, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load known peers")
	}
	if len(data) == 0 {
		return nil, nil
	}
	return strings.Split(string(data), ","), nil
}

// SaveKnownPeers persists the current set of peer addresses.
func (s *StateDB) SaveKnownPeers(addrs []string) error {
	joined := strings.Join(addrs, ",")
	return errors.Wrap(s.db.Put(keyKnownPeers, []byte(joined), nil), "save known peers")
}
