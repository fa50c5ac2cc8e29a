package p2p

import (
	"testing"
	"time"
)

func TestListenAndDialConnectTwoServers(t *testing.T) {
	sinkA := &recordingSink{}
	poolA := NewPool(sinkA, time.Minute, nil)
	serverA := NewServer(poolA)
	if err := serverA.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer serverA.Stop()

	sinkB := &recordingSink{}
	poolB := NewPool(sinkB, time.Minute, nil)
	serverB := NewServer(poolB)
	if err := serverB.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer serverB.Stop()

	addrA := serverA.listener.Addr().String()
	if err := serverB.Dial(addrA); err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(poolA.GetPeers()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if len(poolA.GetPeers()) == 0 {
		t.Fatal("expected server A to observe an accepted connection from server B")
	}
}

func TestSelfDialIsRejected(t *testing.T) {
	sink := &recordingSink{}
	pool := NewPool(sink, time.Minute, nil)
	server := NewServer(pool)
	if err := server.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer server.Stop()

	addr := server.listener.Addr().String()
	if err := server.Dial(addr); err == nil {
		t.Fatal("expected dialing the server's own listen address to fail")
	}

	if len(pool.GetPeers()) != 0 {
		t.Fatalf("expected a self-dial to be rejected, got %d peers", len(pool.GetPeers()))
	}
}
