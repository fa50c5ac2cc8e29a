// Package appstate wires Server, ConnectionPool, Router, MiningEngine,
// Chain and Mempool into a single running node.
package appstate

import (
	"github.com/pouria-shahmiri/p2pcoin/pkg/archive"
	"github.com/pouria-shahmiri/p2pcoin/pkg/chain"
	"github.com/pouria-shahmiri/p2pcoin/pkg/config"
	"github.com/pouria-shahmiri/p2pcoin/pkg/console"
	"github.com/pouria-shahmiri/p2pcoin/pkg/logging"
	"github.com/pouria-shahmiri/p2pcoin/pkg/mempool"
	"github.com/pouria-shahmiri/p2pcoin/pkg/mining"
	"github.com/pouria-shahmiri/p2pcoin/pkg/p2p"
	"github.com/pouria-shahmiri/p2pcoin/pkg/protocol"
	"github.com/pouria-shahmiri/p2pcoin/pkg/statedb"
	"github.com/pouria-shahmiri/p2pcoin/pkg/wallet"
)

var log = logging.For("appstate")

// AppState is the process-wide façade: the only object that knows
// about every component at once.
type AppState struct {
	cfg *config.NodeConfig

	Wallet  *wallet.Wallet
	Archive *archive.Archive
	State   *statedb.StateDB
	Chain   *chain.Chain
	Mempool *mempool.Mempool
	Pool    *p2p.Pool
	Server  *p2p.Server
	Router  *protocol.Router
	Miner   *mining.Engine
	Console *console.Console
}

// New assembles every component without starting any goroutines.
func New(cfg *config.NodeConfig) (*AppState, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	w, err := wallet.Load(cfg.WalletKeyPath, cfg.WalletPassphrase)
	if err != nil {
		return nil, err
	}

	arc, err := archive.Open(cfg.DataDir + "/chain.db")
	if err != nil {
		return nil, err
	}

	sdb, err := statedb.Open(cfg.DataDir + "/state")
	if err != nil {
		return nil, err
	}

	mp := mempool.New()
	c := chain.New(arc, mp)

	if archived, loadErr := arc.Load(); loadErr == nil && len(archived) > 0 {
		c.Restore(archived)
	} else {
		c.EnsureGenesis()
	}

	startID, err := sdb.LoadLastMessageID()
	if err != nil {
		log.Warnf("failed to load persisted dedup counter, starting from 0: %v", err)
		startID = 0
	}

	pool := p2p.NewPool(nil, cfg.IdleTimeout, nil)
	server := p2p.NewServer(pool)

	router := protocol.NewRouter(pool, server, c, mp, func(msg string) {
		log.Infof("peer text: %s", msg)
	}, sdb, startID)

	// The pool forwards assembled lines to the router and asks it to
	// greet new peers with a RequestMessageInfo-style chain push, and
	// persists the growing peer set so a restart can reconnect to it.
	pool.SetSink(router)
	pool.SetOnNewPeer(func(addr string) {
		router.SubmitChain(c.FromGenesis())
		if err := sdb.SaveKnownPeers(pool.GetPeers()); err != nil {
			log.Warnf("failed to persist known peers: %v", err)
		}
	})

	miner := mining.New(c, mp, router)
	cons := console.New(router, w, c)

	return &AppState{
		cfg:     cfg,
		Wallet:  w,
		Archive: arc,
		State:   sdb,
		Chain:   c,
		Mempool: mp,
		Pool:    pool,
		Server:  server,
		Router:  router,
		Miner:   miner,
		Console: cons,
	}, nil
}

// Run starts every long-lived goroutine and returns once they are
// running; Stop shuts them down. Only a listen failure is returned as
// an error — failed dials to the seed peer or to known peers are
// logged and the node keeps running.
func (a *AppState) Run() error {
	a.Pool.Run()
	a.Router.Run()

	if err := a.Server.Listen(a.cfg.ListenAddr); err != nil {
		return err
	}
	log.Infof("listening on %s", a.cfg.ListenAddr)

	if a.cfg.ConnectAddr != "" {
		if err := a.Server.Dial(a.cfg.ConnectAddr); err != nil {
			log.Warnf("failed to dial seed peer %s: %v", a.cfg.ConnectAddr, err)
		}
	}

	if known, err := a.State.LoadKnownPeers(); err != nil {
		log.Warnf("failed to load known peers: %v", err)
	} else {
		for _, addr := range known {
			if addr == "" || a.Server.IsConnected(addr) {
				continue
			}
			if err := a.Server.Dial(addr); err != nil {
				log.Warnf("failed to redial known peer %s: %v", addr, err)
			}
		}
	}

	a.Miner.Resume()
	go a.Miner.Run()

	return nil
}

// Stop shuts every component down in dependency order.
func (a *AppState) Stop() {
	a.Miner.Stop()
	a.Server.Stop()
	a.Pool.Stop()
	a.Router.Stop()
	if a.Archive != nil {
		a.Archive.Close()
	}
	if a.State != nil {
		a.State.Close()
	}
}
