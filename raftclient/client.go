// Package raftclient is a minimal client for a cluster node. Requests
// carry generated ids. The client never retries: a request lost to a
// partition simply times out, and the caller re-issues it under a fresh
// id if it wants to.
package raftclient

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/lithammer/shortuuid/v3"

	"github.com/CrystalAnalyst/toydb/raft/raftpb"
)

// ErrAborted is returned when the serving node lost leadership before
// the request completed.
var ErrAborted = errors.New("raftclient: request aborted")

// ErrNotLeader is returned when the request reached a node that could
// not serve or forward it.
var ErrNotLeader = errors.New("raftclient: not leader")

// Client is a connection to one cluster node. Not safe for concurrent
// use; open one client per goroutine.
type Client struct {
	conn net.Conn
	enc  *raftpb.MessageBinaryEncoder
	dec  *raftpb.MessageBinaryDecoder

	timeout time.Duration
}

// Dial connects to the node at addr. timeout bounds every request
// round-trip; zero means wait forever.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn:    conn,
		enc:     raftpb.NewMessageBinaryEncoder(conn),
		dec:     raftpb.NewMessageBinaryDecoder(conn),
		timeout: timeout,
	}, nil
}

// Close tears the connection down.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Write replicates the command through the log and returns the state
// machine's result.
func (c *Client) Write(command []byte) ([]byte, error) {
	return c.roundTrip(raftpb.REQUEST_KIND_WRITE, command)
}

// Read runs a linearizable read and returns the state machine's result.
func (c *Client) Read(query []byte) ([]byte, error) {
	return c.roundTrip(raftpb.REQUEST_KIND_READ, query)
}

func (c *Client) roundTrip(kind raftpb.REQUEST_KIND, payload []byte) ([]byte, error) {
	requestID := shortuuid.New()

	req := raftpb.Message{
		Type:        raftpb.MESSAGE_TYPE_CLIENT_REQUEST,
		RequestID:   requestID,
		RequestKind: kind,
		Data:        payload,
	}
	if err := c.enc.Encode(&req); err != nil {
		return nil, err
	}

	if c.timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}

	for {
		resp, err := c.dec.Decode()
		if err != nil {
			return nil, err
		}
		if resp.Type != raftpb.MESSAGE_TYPE_CLIENT_RESPONSE || resp.RequestID != requestID {
			// response to an older, abandoned request
			continue
		}

		switch resp.ResponseError {
		case raftpb.ERROR_TYPE_NONE:
			return resp.Data, nil
		case raftpb.ERROR_TYPE_ABORT:
			return nil, ErrAborted
		case raftpb.ERROR_TYPE_NOT_LEADER:
			return nil, ErrNotLeader
		default:
			return nil, fmt.Errorf("raftclient: unknown response error %d", resp.ResponseError)
		}
	}
}
