// Package p2p implements the Server (accept/dial) and ConnectionPool
// components of the node's transport layer.
package p2p

import (
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pouria-shahmiri/p2pcoin/pkg/logging"
)

var log = logging.For("pool")

// bufSize is the per-peer read chunk size.
const bufSize = 1024

// maxRxBuffer is the garbage-protection ceiling on a per-peer receive
// buffer that never sees a newline.
const maxRxBuffer = 10 * bufSize

// MessageSink receives framed, newline-stripped lines extracted from
// peer byte streams. pkg/protocol.Router implements this.
type MessageSink interface {
	HandleRawMessage(line string)
}

type peerHandle struct {
	mu       sync.Mutex
	conn     net.Conn
	lastSeen time.Time
	rxBuf    []byte
}

// Pool is the ConnectionPool: it owns every live peer's write half,
// receive-side buffer and last-activity timestamp. All mutation goes
// through the exported methods — the pool is logically
// single-threaded even though it is implemented with a mutex rather
// than a literal actor channel (see DESIGN.md).
type Pool struct {
	mu          sync.RWMutex
	peers       map[string]*peerHandle
	sink        MessageSink
	idleTimeout time.Duration
	onNewPeer   func(addr string)

	quit chan struct{}
	once sync.Once
}

// NewPool creates an empty pool. sink receives every complete line
// read from any peer; onNewPeer, if non-nil, is invoked whenever a
// peer is added (the router's handshake hook).
func NewPool(sink MessageSink, idleTimeout time.Duration, onNewPeer func(addr string)) *Pool {
	return &Pool{
		peers:       make(map[string]*peerHandle),
		sink:        sink,
		idleTimeout: idleTimeout,
		onNewPeer:   onNewPeer,
		quit:        make(chan struct{}),
	}
}

// Run starts the idle-eviction loop. The loop wakes on a bounded
// interval and drops any peer whose last_seen exceeds idleTimeout.
func (p *Pool) Run() {
	interval := p.idleTimeout
	if interval > 30*time.Second {
		interval = 30 * time.Second // check more often than the timeout itself
	}
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.evictIdle()
			case <-p.quit:
				return
			}
		}
	}()
}

// Stop terminates the idle-eviction loop.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.quit) })
}

func (p *Pool) evictIdle() {
	now := time.Now()

	p.mu.Lock()
	var stale []string
	for addr, h := range p.peers {
		h.mu.Lock()
		idle := now.Sub(h.lastSeen)
		h.mu.Unlock()
		if idle > p.idleTimeout {
			stale = append(stale, addr)
		}
	}
	for _, addr := range stale {
		if h, ok := p.peers[addr]; ok {
			h.conn.Close()
			delete(p.peers, addr)
		}
	}
	p.mu.Unlock()

	for _, addr := range stale {
		log.WithField("peer", addr).Info("evicted idle peer")
	}
}

// SetSink sets (or replaces) the line sink. Used during startup to
// break the construction cycle between the Pool and the Router that
// consumes its lines.
func (p *Pool) SetSink(sink MessageSink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = sink
}

// SetOnNewPeer sets (or replaces) the new-peer hook.
func (p *Pool) SetOnNewPeer(fn func(addr string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNewPeer = fn
}

func (p *Pool) getSink() MessageSink {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sink
}

func (p *Pool) getOnNewPeer() func(addr string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.onNewPeer
}

// NewPeer registers a freshly accepted or dialed connection.
func (p *Pool) NewPeer(addr string, conn net.Conn) {
	h := &peerHandle{conn: conn, lastSeen: time.Now()}

	p.mu.Lock()
	p.peers[addr] = h
	p.mu.Unlock()

	log.WithField("peer", addr).Info("peer connected")

	if onNewPeer := p.getOnNewPeer(); onNewPeer != nil {
		onNewPeer(addr)
	}
}

// PeerBytes appends freshly read bytes to a peer's receive buffer and
// forwards every complete newline-terminated line to the sink.
func (p *Pool) PeerBytes(addr string, data []byte) {
	p.mu.RLock()
	h, ok := p.peers[addr]
	p.mu.RUnlock()
	if !ok {
		return
	}

	h.mu.Lock()
	h.rxBuf = append(h.rxBuf, data...)
	h.lastSeen = time.Now()

	var lines []string
	for {
		idx := indexByte(h.rxBuf, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, string(h.rxBuf[:idx]))
		h.rxBuf = h.rxBuf[idx+1:]
	}

	if len(h.rxBuf) > maxRxBuffer {
		h.rxBuf = nil
	}
	h.mu.Unlock()

	sink := p.getSink()
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if sink != nil {
			sink.HandleRawMessage(line)
		}
	}
}

// PeerDisconnected removes a peer after its reader task ends.
func (p *Pool) PeerDisconnected(addr string) {
	p.mu.Lock()
	h, ok := p.peers[addr]
	if ok {
		delete(p.peers, addr)
	}
	p.mu.Unlock()

	if ok {
		h.conn.Close()
		log.WithField("peer", addr).Info("peer disconnected")
	}
}

// Broadcast writes line to every connected peer. A peer whose write
// fails, or whose per-peer lock is found poisoned (recovered via a
// panic guard), is dropped rather than taking down the broadcast
// loop.
func (p *Pool) Broadcast(line string) {
	p.mu.RLock()
	targets := make(map[string]*peerHandle, len(p.peers))
	for addr, h := range p.peers {
		targets[addr] = h
	}
	p.mu.RUnlock()

	var failed []string
	for addr, h := range targets {
		if !writeLine(h, line) {
			failed = append(failed, addr)
		}
	}

	if len(failed) > 0 {
		p.mu.Lock()
		for _, addr := range failed {
			delete(p.peers, addr)
		}
		p.mu.Unlock()
		for _, addr := range failed {
			log.WithField("peer", addr).Warn("dropped peer after failed broadcast write")
		}
	}
}

// writeLine performs one peer write under its dedicated lock,
// recovering from a poisoned lock (a panic during the write) exactly
// as a failed write would be handled.
func writeLine(h *peerHandle, line string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := h.conn.Write([]byte(line))
	return err == nil
}

// GetPeers returns the current set of connected peer addresses.
func (p *Pool) GetPeers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, 0, len(p.peers))
	for addr := range p.peers {
		out = append(out, addr)
	}
	return out
}

// IsConnected reports whether addr is currently a live peer.
func (p *Pool) IsConnected(addr string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.peers[addr]
	return ok
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
