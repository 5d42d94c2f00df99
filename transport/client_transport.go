// Package transport implements the client-side transport layer with multiplexing and heartbeat.
//
// ClientTransport carries many concurrent requests over a single TCP connection.
// Each request gets a unique sequence ID, and a background goroutine (recvLoop)
// continuously reads responses and routes them to the correct caller via pending channels.
//
//	goroutine-1 ──Send(seq=1)──┐
//	goroutine-2 ──Send(seq=2)──┼──→ single TCP conn ──→ Server
//	goroutine-3 ──Send(seq=3)──┘
//
//	recvLoop:  ←── response(seq=2) → pending[2] chan ← response → goroutine-2 wakes up
//
// Blocking reads make out-of-order responses the normal case: a GET waiting for a tuple
// must not hold up the PUT that will eventually supply it.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"tuplespace/codec"
	"tuplespace/logging"
	"tuplespace/message"
	"tuplespace/protocol"
)

var ErrClosed = errors.New("transport: connection closed")

// Result is what a pending caller receives: a response, or the error that ended the
// connection before one arrived.
type Result struct {
	Msg message.ServerMessage
	Err error
}

// ClientTransport manages a single multiplexed TCP connection.
type ClientTransport struct {
	conn    net.Conn
	codec   codec.Codec
	logger  *zap.Logger
	seq     uint32     // Monotonically increasing sequence number (protected by sending mutex)
	pending sync.Map   // map[uint32]chan Result, each request waits on its own channel
	sending sync.Mutex // Serializes frame writes so headers and bodies never interleave

	done     chan struct{} // closed when recvLoop exits
	failOnce sync.Once
	err      error // why the connection ended, set before done is closed
}

// NewClientTransport creates a transport for the given connection and starts two background goroutines:
//   - recvLoop: continuously reads responses from the connection and dispatches to pending callers
//   - heartbeatLoop: sends periodic heartbeat frames (disabled when heartbeat <= 0)
func NewClientTransport(conn net.Conn, codecType codec.CodecType, heartbeat time.Duration, logger *zap.Logger) *ClientTransport {
	t := &ClientTransport{
		conn:   conn,
		codec:  codec.GetCodec(codecType),
		logger: logging.OrNop(logger),
		done:   make(chan struct{}),
	}
	go t.recvLoop()
	if heartbeat > 0 {
		go t.heartbeatLoop(heartbeat)
	}
	return t
}

// Send encodes and writes req. It returns the sequence number and a channel that
// receives exactly one Result.
func (t *ClientTransport) Send(req message.ClientMessage) (uint32, <-chan Result, error) {
	body, err := t.codec.Encode(req)
	if err != nil {
		return 0, nil, err
	}

	t.sending.Lock()
	defer t.sending.Unlock()

	t.seq++
	seq := t.seq

	// Register the response channel BEFORE sending (avoid race with recvLoop)
	respChan := make(chan Result, 1) // Buffered so recvLoop never blocks on a caller
	t.pending.Store(seq, respChan)

	select {
	case <-t.done:
		t.pending.Delete(seq)
		return 0, nil, t.Err()
	default:
	}

	header := protocol.Header{
		CodecType: byte(t.codec.Type()),
		MsgType:   protocol.MsgTypeRequest,
		Seq:       seq,
	}
	if err := protocol.Encode(t.conn, &header, body); err != nil {
		t.pending.Delete(seq)
		return 0, nil, err
	}
	return seq, respChan, nil
}

// Call sends req and waits for its response or the end of ctx. A response that arrives
// after ctx ended is dropped.
func (t *ClientTransport) Call(ctx context.Context, req message.ClientMessage) (message.ServerMessage, error) {
	seq, ch, err := t.Send(req)
	if err != nil {
		return message.ServerMessage{}, err
	}
	select {
	case res := <-ch:
		return res.Msg, res.Err
	case <-ctx.Done():
		t.pending.Delete(seq)
		return message.ServerMessage{}, ctx.Err()
	}
}

// recvLoop is the only reader of the connection: TCP is a byte stream, so frame
// boundaries can only be parsed sequentially.
func (t *ClientTransport) recvLoop() {
	for {
		header, body, err := protocol.Decode(t.conn)
		if err != nil {
			t.fail(err)
			return
		}
		if header.MsgType != protocol.MsgTypeResponse {
			continue
		}

		channel, ok := t.pending.LoadAndDelete(header.Seq)
		if !ok {
			t.logger.Debug("response without a waiting caller", zap.Uint32("seq", header.Seq))
			continue
		}

		var res Result
		cdc := codec.GetCodec(codec.CodecType(header.CodecType))
		if err := cdc.Decode(body, &res.Msg); err != nil {
			res.Err = fmt.Errorf("decode response %d: %w", header.Seq, err)
		}
		channel.(chan Result) <- res
	}
}

// fail records why the connection ended and hands that error to every pending caller
// so they don't block forever waiting for a response.
func (t *ClientTransport) fail(err error) {
	t.failOnce.Do(func() {
		if errors.Is(err, net.ErrClosed) {
			err = ErrClosed
		}
		t.err = err
		close(t.done)
		t.pending.Range(func(key, value any) bool {
			if _, ok := t.pending.LoadAndDelete(key); ok {
				value.(chan Result) <- Result{Err: err}
			}
			return true
		})
	})
}

// Done is closed once the connection is no longer usable.
func (t *ClientTransport) Done() <-chan struct{} { return t.done }

// Err returns why the connection ended, nil while it is usable.
func (t *ClientTransport) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Close closes the connection; pending callers receive ErrClosed.
func (t *ClientTransport) Close() error {
	err := t.conn.Close()
	t.fail(ErrClosed)
	return err
}

// Conn returns the underlying TCP connection.
func (t *ClientTransport) Conn() net.Conn {
	return t.conn
}

// heartbeatLoop sends periodic heartbeat frames to keep the connection alive.
// Heartbeat frames have MsgType=Heartbeat and no body.
func (t *ClientTransport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
		header := &protocol.Header{
			CodecType: byte(t.codec.Type()),
			MsgType:   protocol.MsgTypeHeartbeat,
		}
		// Heartbeat writes also need the sending lock to avoid frame interleaving
		t.sending.Lock()
		err := protocol.Encode(t.conn, header, nil)
		t.sending.Unlock()
		if err != nil {
			t.logger.Debug("heartbeat failed", zap.Stringer("remote", t.conn.RemoteAddr()), zap.Error(err))
			t.conn.Close()
			return
		}
	}
}
