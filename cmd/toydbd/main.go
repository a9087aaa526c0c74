// Command toydbd runs one cluster node: a Raft core over bolt-backed
// log storage, a leveldb key-value state machine, and a TCP transport.
// A single goroutine multiplexes the tick timer, inbound peer messages,
// and client requests into the node, so every Raft step stays
// single-threaded.
package main

import (
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/CrystalAnalyst/toydb/config"
	"github.com/CrystalAnalyst/toydb/kvsm"
	"github.com/CrystalAnalyst/toydb/pkg/types"
	"github.com/CrystalAnalyst/toydb/pkg/xlog"
	"github.com/CrystalAnalyst/toydb/raft"
	"github.com/CrystalAnalyst/toydb/raftbolt"
	"github.com/CrystalAnalyst/toydb/transport"
)

var logger = xlog.NewLogger("toydbd", xlog.INFO)

const maxEntryBytesPerMsg = 1 << 20

func main() {
	configPath := flag.String("config", "config.yaml", "path to the node configuration file")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		xlog.SetGlobalMaxLogLevel(xlog.DEBUG)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	if err := os.MkdirAll(cfg.Node.DataDir, 0700); err != nil {
		logger.Fatalf("create data dir: %v", err)
	}

	storage, err := raftbolt.Open(filepath.Join(cfg.Node.DataDir, "raft.db"))
	if err != nil {
		logger.Fatalf("open raft storage: %v", err)
	}
	defer storage.Close()

	kv, err := kvsm.OpenLevelDBKV(filepath.Join(cfg.Node.DataDir, "kv"))
	if err != nil {
		logger.Fatalf("open kv state machine: %v", err)
	}
	defer kv.Close()

	nd := raft.StartNode(&raft.Config{
		ID:                      cfg.Node.ID,
		PeerIDs:                 cfg.PeerIDs(),
		ElectionTickNum:         cfg.Raft.ElectionTimeoutTicks,
		HeartbeatTimeoutTickNum: cfg.Raft.HeartbeatIntervalTicks,
		StorageStable:           storage,
		StateMachine:            kv,
		MaxEntryNumPerMsg:       maxEntryBytesPerMsg,
	})

	tr := transport.New(cfg.Node.ID, cfg.Node.Address, cfg.Peers())
	if err := tr.Start(); err != nil {
		logger.Fatalf("start transport: %v", err)
	}
	defer tr.Stop()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	logger.Infof("node %s serving on %s", types.ID(cfg.Node.ID), cfg.Node.Address)
	serve(nd, tr, cfg.Raft.TickInterval, sigc)
	logger.Infof("node %s shutting down", types.ID(cfg.Node.ID))
}

// serve is the single-threaded event loop: exactly one Raft step runs
// at a time, and its output is flushed before the next event.
func serve(nd *raft.Node, tr *transport.Transport, tickInterval time.Duration, sigc <-chan os.Signal) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	// open client streams by request id, for routing responses back
	clients := make(map[string]*transport.ClientConn)

	for {
		var batch raft.Batch

		select {
		case <-ticker.C:
			batch = nd.Tick()

		case in := <-tr.Receive():
			if in.Client != nil {
				clients[in.Msg.RequestID] = in.Client
				msg := in.Msg
				msg.From, msg.To = nd.ID(), nd.ID()
				batch = nd.Step(msg)
			} else {
				batch = nd.Step(in.Msg)
			}

		case <-sigc:
			return
		}

		tr.Send(batch.Messages...)

		for _, resp := range batch.Responses {
			client, ok := clients[resp.RequestID]
			if !ok {
				continue
			}
			delete(clients, resp.RequestID)
			if err := client.Send(resp); err != nil {
				logger.Infof("dropping response %s; client gone (%v)", resp.RequestID, err)
			}
		}
	}
}
