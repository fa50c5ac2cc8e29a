package p2p

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pouria-shahmiri/p2pcoin/pkg/logging"
)

var serverLog = logging.For("server")

const (
	dialTimeout = 10 * time.Second
	readTimeout = 500 * time.Millisecond
	backoffWait = 100 * time.Millisecond
)

// Server owns the TCP listener and every per-peer reader task.
type Server struct {
	pool     *Pool
	listener net.Listener
	selfAddr string

	wg   sync.WaitGroup
	quit chan struct{}
	once sync.Once
}

// NewServer creates a Server that feeds accepted/dialed connections
// into pool.
func NewServer(pool *Pool) *Server {
	return &Server{pool: pool, quit: make(chan struct{})}
}

// Listen binds addr and spawns a per-peer reader task for every
// accepted connection. Bind failure is fatal to Listen.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.selfAddr = ln.Addr().String()

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			serverLog.Warnf("accept error: %v", err)
			continue
		}

		addr := conn.RemoteAddr().String()
		s.pool.NewPeer(addr, conn)

		s.wg.Add(1)
		go s.readLoop(addr, conn)
	}
}

// Dial attempts a single TCP connect with a 10s timeout and, on
// success, spawns the same per-peer reader task. Dialing the server's
// own listen address is rejected outright.
func (s *Server) Dial(addr string) error {
	if s.selfAddr != "" && addr == s.selfAddr {
		return errSelfDial
	}

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return err
	}

	peerAddr := conn.RemoteAddr().String()
	s.pool.NewPeer(peerAddr, conn)

	s.wg.Add(1)
	go s.readLoop(peerAddr, conn)
	return nil
}

// IsConnected reports whether addr is already a live peer.
func (s *Server) IsConnected(addr string) bool {
	return s.pool.IsConnected(addr)
}

// Stop closes the listener and every live connection, then waits for
// reader tasks to return. In-flight reads unblock within their
// 500ms deadline.
func (s *Server) Stop() {
	s.once.Do(func() {
		close(s.quit)
		if s.listener != nil {
			s.listener.Close()
		}
	})
	s.wg.Wait()
}

// readLoop is the per-peer reader task: a 1 KiB buffer, a 500ms read
// deadline so shutdown stays responsive, and byte forwarding to the
// pool.
func (s *Server) readLoop(addr string, conn net.Conn) {
	defer s.wg.Done()

	buf := make([]byte, bufSize)

	for {
		select {
		case <-s.quit:
			conn.Close()
			s.pool.PeerDisconnected(addr)
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, err := conn.Read(buf)

		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.pool.PeerBytes(addr, chunk)
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				s.pool.PeerDisconnected(addr)
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				time.Sleep(backoffWait)
				continue
			}
			serverLog.WithField("peer", addr).Warnf("read error: %v", err)
			s.pool.PeerDisconnected(addr)
			return
		}
	}
}

var errSelfDial = errors.New("refusing to dial own listen address")
