// Package transport implements node.Network over TCP for a multi-process
// deployment, in place of node.LocalNetwork's in-process map. Each call is
// a standalone request/response round trip: the client dials, sends a
// length-prefixed, snappy-compressed JSON request frame, and reads back
// one response frame. It is request/response rather than fire-and-forget
// gossip, since every node.Network method is itself a synchronous call.
package transport

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/golang/snappy"
)

// maxFrameBytes bounds a single frame as a safety limit against a peer
// that sends a bogus length prefix.
const maxFrameBytes = 32 * 1024 * 1024

const readDeadline = 30 * time.Second

// method names understood by Server.dispatch.
const (
	methodPeers    = "peers"
	methodCosign   = "cosign"
	methodPool     = "pool"
	methodTipHash  = "tip_hash"
	methodMerge    = "merge"
	methodFinalize = "finalize"
)

// request is the envelope for every RPC call.
type request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// response is the envelope for every RPC reply.
type response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// writeFrame snappy-compresses v's JSON encoding and writes it to conn
// behind a 4-byte big-endian length prefix.
func writeFrame(conn net.Conn, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	compressed := snappy.Encode(nil, raw)
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(compressed)))
	if _, err := conn.Write(header[:]); err != nil {
		return err
	}
	_, err = conn.Write(compressed)
	return err
}

// readFrame reads one length-prefixed, snappy-compressed frame from conn
// and decodes it into v.
func readFrame(conn net.Conn, v any) error {
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	var header [4]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > maxFrameBytes {
		return fmt.Errorf("transport: frame too large: %d bytes", length)
	}
	compressed := make([]byte, length)
	if _, err := io.ReadFull(conn, compressed); err != nil {
		return err
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return fmt.Errorf("transport: decompress frame: %w", err)
	}
	return json.Unmarshal(raw, v)
}
