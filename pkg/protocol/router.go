package protocol

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pouria-shahmiri/p2pcoin/pkg/cryptoutil"
	"github.com/pouria-shahmiri/p2pcoin/pkg/logging"
	"github.com/pouria-shahmiri/p2pcoin/pkg/types"
)

var log = logging.For("protocol")

// Pool is the subset of ConnectionPool the router needs: fan-out
// writes to every connected peer.
type Pool interface {
	Broadcast(line string)
}

// Dialer lets the router ask the Server to connect to a peer
// advertised via ResponsePeer.
type Dialer interface {
	Dial(addr string) error
	IsConnected(addr string) bool
}

// ChainEngine is the subset of chain.Chain the router drives.
type ChainEngine interface {
	Add(block *types.Block, force bool) error
	Replace(blocks []*types.Block) (bool, error)
	LastN(n int) []*types.Block
	Before(t int64) []*types.Block
	FromGenesis() []*types.Block
}

// MempoolEngine is the subset of mempool.Mempool the router drives.
type MempoolEngine interface {
	Push(tx types.Transaction)
}

// IDPersister optionally durably stores the dedup counter
// (pkg/statedb). A nil persister keeps the counter in memory only.
type IDPersister interface {
	SaveLastMessageID(id uint64) error
}

// idPayload lets every payload struct accept a freshly assigned id
// without reflection.
type idPayload interface {
	withID(uint64) interface{}
}

// outboundReq is an engine-initiated message awaiting an id
// assignment and broadcast.
type outboundReq struct {
	tag     Tag
	payload idPayload
}

func (p RequestMessageInfo) withID(id uint64) interface{}         { p.Id = id; return p }
func (p ResponseMessageInfo) withID(id uint64) interface{}        { p.Id = id; return p }
func (p RequestLastNBlocksMessage) withID(id uint64) interface{}  { p.Id = id; return p }
func (p RequestBlocksBeforeMessage) withID(id uint64) interface{} { p.Id = id; return p }
func (p ResponseBlockMessage) withID(id uint64) interface{}       { p.Id = id; return p }
func (p ResponseTransactionMessage) withID(id uint64) interface{} { p.Id = id; return p }
func (p ResponseChainMessage) withID(id uint64) interface{}       { p.Id = id; return p }
func (p ResponsePeerMessage) withID(id uint64) interface{}        { p.Id = id; return p }
func (p ResponseTextMessage) withID(id uint64) interface{}        { p.Id = id; return p }

// Router consumes raw inbound lines from the ConnectionPool and typed
// outbound requests from the engines over a single goroutine, so the
// dedup counter never needs a lock.
type Router struct {
	pool      Pool
	dialer    Dialer
	chain     ChainEngine
	mempool   MempoolEngine
	textSink  func(string)
	persister IDPersister

	in   chan string
	out  chan outboundReq
	quit chan struct{}
	once sync.Once

	lastID uint64
}

// NewRouter wires a Router to its collaborators. textSink receives
// ResponseText payloads meant for the operator console; it may be nil.
func NewRouter(pool Pool, dialer Dialer, chainEngine ChainEngine, mempoolEngine MempoolEngine, textSink func(string), persister IDPersister, startID uint64) *Router {
	return &Router{
		pool:      pool,
		dialer:    dialer,
		chain:     chainEngine,
		mempool:   mempoolEngine,
		textSink:  textSink,
		persister: persister,
		in:        make(chan string, 256),
		out:       make(chan outboundReq, 256),
		quit:      make(chan struct{}),
		lastID:    startID,
	}
}

// HandleRawMessage enqueues a line read by the ConnectionPool. Safe
// to call from any goroutine.
func (r *Router) HandleRawMessage(line string) {
	select {
	case r.in <- line:
	case <-r.quit:
	}
}

// Stop terminates the router's loop.
func (r *Router) Stop() {
	r.once.Do(func() { close(r.quit) })
}

// Run drives the single router goroutine until Stop is called.
func (r *Router) Run() {
	go func() {
		for {
			select {
			case line := <-r.in:
				r.handleRaw(line)
			case req := <-r.out:
				r.handleOutbound(req)
			case <-time.After(1 * time.Second):
				// suspension point only — keeps the loop responsive
				// to Stop() even with no traffic.
			case <-r.quit:
				return
			}
		}
	}()
}

func (r *Router) nextID() uint64 {
	r.lastID++
	if r.persister != nil {
		if err := r.persister.SaveLastMessageID(r.lastID); err != nil {
			log.Warnf("failed to persist dedup counter: %v", err)
		}
	}
	return r.lastID
}

func (r *Router) handleOutbound(req outboundReq) {
	id := r.nextID()
	payload := req.payload.withID(id)
	line, err := Encode(req.tag, payload)
	if err != nil {
		log.Errorf("failed to encode outbound %s: %v", req.tag, err)
		return
	}
	r.pool.Broadcast(line)
}

type idOnly struct {
	Id uint64 `json:"id"`
}

func (r *Router) handleRaw(line string) {
	tag, content, err := DecodeFrame(line)
	if err != nil {
		log.Warnf("dropping malformed frame: %v", err)
		return
	}

	switch tag {
	case TagRequestMessageInfo:
		r.onRequestMessageInfo()
		return
	case TagResponseMessageInfo:
		var resp ResponseMessageInfo
		if err := json.Unmarshal(content, &resp); err != nil {
			log.Warnf("dropping malformed ResponseMessageInfo: %v", err)
			return
		}
		if resp.Id > r.lastID {
			r.lastID = resp.Id
		}
		return
	}

	var env idOnly
	if err := json.Unmarshal(content, &env); err != nil {
		log.Warnf("dropping malformed %s: %v", tag, err)
		return
	}

	if env.Id <= r.lastID {
		// already seen — gossip terminates here.
		return
	}
	r.lastID = env.Id
	if r.persister != nil {
		if err := r.persister.SaveLastMessageID(r.lastID); err != nil {
			log.Warnf("failed to persist dedup counter: %v", err)
		}
	}

	// Re-broadcast before dispatch, preserving the original id so
	// peers further down the gossip path can dedup it too. The pool
	// hands over lines with their newline stripped, so it is restored
	// here for the receivers' framing.
	r.pool.Broadcast(line + "\n")

	r.dispatch(tag, content)
}

func (r *Router) dispatch(tag Tag, content json.RawMessage) {
	switch tag {
	case TagResponseBlock:
		var msg ResponseBlockMessage
		if err := json.Unmarshal(content, &msg); err != nil {
			log.Warnf("dropping malformed ResponseBlockMessage: %v", err)
			return
		}
		r.onResponseBlock(msg)

	case TagResponseTransaction:
		var msg ResponseTransactionMessage
		if err := json.Unmarshal(content, &msg); err != nil {
			log.Warnf("dropping malformed ResponseTransactionMessage: %v", err)
			return
		}
		r.onResponseTransaction(msg)

	case TagResponseChain:
		var msg ResponseChainMessage
		if err := json.Unmarshal(content, &msg); err != nil {
			log.Warnf("dropping malformed ResponseChainMessage: %v", err)
			return
		}
		r.onResponseChain(msg)

	case TagResponsePeer:
		var msg ResponsePeerMessage
		if err := json.Unmarshal(content, &msg); err != nil {
			log.Warnf("dropping malformed ResponsePeerMessage: %v", err)
			return
		}
		r.onResponsePeer(msg)

	case TagRequestLastNBlocks:
		var msg RequestLastNBlocksMessage
		if err := json.Unmarshal(content, &msg); err != nil {
			log.Warnf("dropping malformed RequestLastNBlocksMessage: %v", err)
			return
		}
		r.SubmitChain(r.chain.LastN(msg.N))

	case TagRequestBlocksBefore:
		var msg RequestBlocksBeforeMessage
		if err := json.Unmarshal(content, &msg); err != nil {
			log.Warnf("dropping malformed RequestBlocksBeforeMessage: %v", err)
			return
		}
		r.SubmitChain(r.chain.Before(msg.TimeStamp))

	case TagResponseText:
		var msg ResponseTextMessage
		if err := json.Unmarshal(content, &msg); err != nil {
			log.Warnf("dropping malformed ResponseTextMessage: %v", err)
			return
		}
		if r.textSink != nil {
			r.textSink(msg.Message)
		}

	default:
		log.Warnf("dropping unknown message type %q", tag)
	}
}

// onRequestMessageInfo answers a liveness probe and piggybacks the
// local chain, bypassing dedup entirely.
func (r *Router) onRequestMessageInfo() {
	id := r.nextID()
	resp := ResponseMessageInfo{Id: id, TimeStamp: time.Now().Unix()}
	line, err := Encode(TagResponseMessageInfo, resp)
	if err == nil {
		r.pool.Broadcast(line)
	}
	r.SubmitChain(r.chain.FromGenesis())
}

func (r *Router) onResponseBlock(msg ResponseBlockMessage) {
	// A bare wire ResponseBlock is never trusted with force=true —
	// only Replace (driven by ResponseChain) may bypass linkage
	// checks.
	block := msg.Block
	if err := r.chain.Add(&block, false); err != nil {
		log.Warnf("block rejected, requesting resync: %v", err)
		r.SubmitRequestLastNBlocks(10)
	}
}

func (r *Router) onResponseTransaction(msg ResponseTransactionMessage) {
	ok, err := cryptoutil.VerifyTransaction(msg.Transaction)
	if err != nil || !ok {
		log.Warnf("dropping transaction with invalid signature: %v", err)
		return
	}
	r.mempool.Push(msg.Transaction)
}

func (r *Router) onResponseChain(msg ResponseChainMessage) {
	blocks := make([]*types.Block, len(msg.Chain))
	for i := range msg.Chain {
		b := msg.Chain[i]
		blocks[i] = &b
	}
	if _, err := r.chain.Replace(blocks); err != nil {
		log.Warnf("chain replacement error: %v", err)
	}
}

func (r *Router) onResponsePeer(msg ResponsePeerMessage) {
	if r.dialer == nil {
		return
	}

	addr := fmt.Sprintf("%s:%d", msg.PeerAddress, DefaultPort)
	if r.dialer.IsConnected(addr) {
		return
	}
	if err := r.dialer.Dial(addr); err != nil {
		log.Warnf("failed to dial advertised peer %s: %v", addr, err)
	}
}

// --- Outbound submissions used by engines and the console façade ---

func (r *Router) submit(tag Tag, payload idPayload) {
	select {
	case r.out <- outboundReq{tag: tag, payload: payload}:
	case <-r.quit:
	}
}

// SubmitBlock broadcasts a freshly mined block.
func (r *Router) SubmitBlock(block types.Block) {
	r.submit(TagResponseBlock, ResponseBlockMessage{Block: block, TimeStamp: time.Now().Unix(), Force: false})
}

// SubmitTransaction broadcasts a signed transaction (console path).
func (r *Router) SubmitTransaction(tx types.Transaction) {
	r.submit(TagResponseTransaction, ResponseTransactionMessage{Transaction: tx, TimeStamp: time.Now().Unix()})
}

// SubmitChain broadcasts a chain snapshot, used both for
// RequestMessageInfo replies and RequestLastNBlocks/BlocksBefore answers.
func (r *Router) SubmitChain(blocks []*types.Block) {
	flat := make([]types.Block, len(blocks))
	for i, b := range blocks {
		flat[i] = *b
	}
	r.submit(TagResponseChain, ResponseChainMessage{Chain: flat, TimeStamp: time.Now().Unix()})
}

// SubmitText broadcasts an operator-authored free-text message.
func (r *Router) SubmitText(message string) {
	r.submit(TagResponseText, ResponseTextMessage{Message: message, TimeStamp: time.Now().Unix()})
}

// SubmitPeerAddress advertises a peer to the rest of the network.
func (r *Router) SubmitPeerAddress(addr string) {
	r.submit(TagResponsePeer, ResponsePeerMessage{PeerAddress: addr, TimeStamp: time.Now().Unix()})
}

// SubmitRequestLastNBlocks asks the network for a resync.
func (r *Router) SubmitRequestLastNBlocks(n int) {
	r.submit(TagRequestLastNBlocks, RequestLastNBlocksMessage{N: n})
}
