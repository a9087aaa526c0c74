// Package transport moves raftpb messages between nodes over long-lived
// TCP streams, and accepts client connections on the same listener.
// Delivery is best-effort: messages to unreachable peers are dropped and
// the Raft protocol itself recovers on the next heartbeat or append.
package transport

import (
	"net"
	"sync"

	"github.com/CrystalAnalyst/toydb/pkg/types"
	"github.com/CrystalAnalyst/toydb/pkg/xlog"
	"github.com/CrystalAnalyst/toydb/raft/raftpb"
)

var logger = xlog.NewLogger("transport", xlog.INFO)

// ClientConn is a connected client session. Responses are written back
// on the same stream the request arrived on.
type ClientConn struct {
	mu  sync.Mutex
	enc *raftpb.MessageBinaryEncoder
}

// Send writes one message back to the client.
func (c *ClientConn) Send(msg raftpb.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(&msg)
}

// Inbound is one received message. Client is nil for peer messages and
// set for client requests, so responses can be routed back to the
// originating stream.
type Inbound struct {
	Msg    raftpb.Message
	Client *ClientConn
}

// Transport owns the node's listener and one outbound stream per peer.
type Transport struct {
	selfID     uint64
	listenAddr string

	mu    sync.Mutex
	peers map[uint64]*peer

	ln    net.Listener
	recvc chan Inbound
	stopc chan struct{}
	wg    sync.WaitGroup
}

// New creates a Transport for the node at listenAddr. peerAddrs maps
// every other cluster member's ID to its address.
func New(selfID uint64, listenAddr string, peerAddrs map[uint64]string) *Transport {
	tr := &Transport{
		selfID:     selfID,
		listenAddr: listenAddr,
		peers:      make(map[uint64]*peer),
		recvc:      make(chan Inbound, 4096),
		stopc:      make(chan struct{}),
	}
	for id, addr := range peerAddrs {
		if id == selfID {
			continue
		}
		tr.peers[id] = &peer{id: id, addr: addr}
	}
	return tr
}

// Start begins accepting inbound connections.
func (tr *Transport) Start() error {
	ln, err := net.Listen("tcp", tr.listenAddr)
	if err != nil {
		return err
	}
	tr.ln = ln

	tr.wg.Add(1)
	go tr.acceptLoop()

	logger.Infof("node %s listening on %s", types.ID(tr.selfID), tr.listenAddr)
	return nil
}

// Receive returns the channel of inbound messages.
func (tr *Transport) Receive() <-chan Inbound {
	return tr.recvc
}

// Send routes each message to its To peer. Messages for unknown or
// unreachable peers are dropped.
func (tr *Transport) Send(msgs ...raftpb.Message) {
	for _, msg := range msgs {
		tr.mu.Lock()
		p, ok := tr.peers[msg.To]
		tr.mu.Unlock()

		if !ok {
			logger.Warningf("dropping %q to unknown peer %s", msg.Type, types.ID(msg.To))
			continue
		}
		if err := p.send(msg); err != nil {
			logger.Infof("dropping %q to unreachable peer %s (%v)", msg.Type, types.ID(msg.To), err)
		}
	}
}

// Stop closes the listener and all peer streams.
func (tr *Transport) Stop() {
	close(tr.stopc)
	if tr.ln != nil {
		tr.ln.Close()
	}

	tr.mu.Lock()
	for _, p := range tr.peers {
		p.close()
	}
	tr.mu.Unlock()

	tr.wg.Wait()
}

func (tr *Transport) acceptLoop() {
	defer tr.wg.Done()

	for {
		conn, err := tr.ln.Accept()
		if err != nil {
			select {
			case <-tr.stopc:
				return
			default:
			}
			logger.Warningf("accept error (%v)", err)
			return
		}

		tr.wg.Add(1)
		go tr.readLoop(conn)
	}
}

// readLoop decodes messages off one inbound stream. A stream may carry
// peer traffic or client requests; they are told apart per message.
func (tr *Transport) readLoop(conn net.Conn) {
	defer tr.wg.Done()
	defer conn.Close()

	// Stop closes the stream so a blocked Decode returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-tr.stopc:
			conn.Close()
		case <-done:
		}
	}()

	dec := raftpb.NewMessageBinaryDecoder(conn)
	client := &ClientConn{enc: raftpb.NewMessageBinaryEncoder(conn)}

	for {
		msg, err := dec.Decode()
		if err != nil {
			select {
			case <-tr.stopc:
			default:
				logger.Debugf("stream closed (%v)", err)
			}
			return
		}

		in := Inbound{Msg: msg}
		if msg.Type == raftpb.MESSAGE_TYPE_CLIENT_REQUEST && msg.From == 0 {
			// direct client request, not a peer forward
			in.Client = client
		}

		select {
		case tr.recvc <- in:
		case <-tr.stopc:
			return
		}
	}
}

// peer is one outbound stream, dialed lazily and redialed after errors.
type peer struct {
	id   uint64
	addr string

	mu   sync.Mutex
	conn net.Conn
	enc  *raftpb.MessageBinaryEncoder
}

func (p *peer) send(msg raftpb.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		conn, err := net.Dial("tcp", p.addr)
		if err != nil {
			return err
		}
		p.conn = conn
		p.enc = raftpb.NewMessageBinaryEncoder(conn)
	}

	if err := p.enc.Encode(&msg); err != nil {
		p.conn.Close()
		p.conn = nil
		p.enc = nil
		return err
	}
	return nil
}

func (p *peer) close() {
	p.mu.Lock()
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
		p.enc = nil
	}
	p.mu.Unlock()
}
