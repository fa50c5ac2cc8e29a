package statedb

import (
	"path/filepath"
	"reflect"
	"testing"
)

func openTestDB(t *testing.T) *StateDB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "state"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLoadLastMessageIDColdStart(t *testing.T) {
	db := openTestDB(t)
	id, err := db.LoadLastMessageID()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if id != 0 {
		t.Fatalf("expected 0 on cold start, got %d", id)
	}
}

func TestSaveAndLoadLastMessageIDRoundTrip(t *testing.T) {
	db := openTestDB(t)
	if err := db.SaveLastMessageID(42); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	id, err := db.LoadLastMessageID()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if id != 42 {
		t.Fatalf("expected 42, got %d", id)
	}
}

func TestLoadKnownPeersColdStart(t *testing.T) {
	db := openTestDB(t)
	peers, err := db.LoadKnownPeers()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if peers != nil {
		t.Fatalf("expected nil on cold start, got %v", peers)
	}
}

func TestSaveAndLoadKnownPeersRoundTrip(t *testing.T) {
	db := openTestDB(t)
	want := []string{"10.0.0.1:7878", "10.0.0.2:7878"}
	if err := db.SaveKnownPeers(want); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	got, err := db.LoadKnownPeers()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
