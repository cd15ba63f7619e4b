package rpc

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/retry"
)

// Handler serves servant requests over websocket. Mount it at the endpoint
// given to WithWebsocketEndpoint.
func (b *Broker) Handler() http.Handler {
	return http.HandlerFunc(b.serveWebsocket)
}

func (b *Broker) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	if b.closed.Load() {
		http.Error(w, "broker closed", http.StatusServiceUnavailable)
		return
	}
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.metrics.RecordError("rpc-broker", "upgrade_error")
		return
	}

	b.wsMu.Lock()
	b.wsConns[conn] = struct{}{}
	b.wsWG.Add(1)
	b.wsMu.Unlock()

	go b.handleWebsocketConn(conn)
}

func (b *Broker) handleWebsocketConn(conn *websocket.Conn) {
	defer b.wsWG.Done()
	defer func() {
		_ = conn.Close()
		b.wsMu.Lock()
		delete(b.wsConns, conn)
		b.wsMu.Unlock()
	}()

	var writeMu sync.Mutex
	var calls sync.WaitGroup
	defer calls.Wait()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.logger.Debug("Websocket peer gone", "error", err)
			}
			return
		}
		req, err := decodeRequest(message)
		if err != nil {
			b.metrics.RecordError("rpc-broker", "malformed_request")
			continue
		}

		calls.Add(1)
		go func(req request) {
			defer calls.Done()
			ctx, cancel := b.withTimeout(context.Background())
			defer cancel()
			result, err := b.dispatch(ctx, req.object, req.op, req.args)
			frame := encodeReply(replyFor(req.seq, result, err))

			writeMu.Lock()
			defer writeMu.Unlock()
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				b.logger.Debug("Reply not delivered", "error", err)
			}
		}(req)
	}
}

func (b *Broker) invokeWebsocket(ctx context.Context, ref Reference, op string, args []byte) ([]byte, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	c, err := b.websocketClient(ctx, ref.Endpoint())
	if err != nil {
		return nil, err
	}
	rep, err := c.call(ctx, request{object: ref.ObjectID(), op: op, args: args})
	if err != nil {
		return nil, err
	}
	return rep.outcome("invokeWebsocket")
}

// websocketClient returns the cached connection to endpoint, dialing a new
// one when there is none or the previous one failed.
func (b *Broker) websocketClient(ctx context.Context, endpoint string) (*wsClient, error) {
	b.wsMu.Lock()
	defer b.wsMu.Unlock()

	if c, ok := b.wsClients[endpoint]; ok && !c.failed() {
		return c, nil
	}

	dial := retry.Config{MaxAttempts: 3, InitialDelay: 50 * time.Millisecond, MaxDelay: 500 * time.Millisecond, Multiplier: 2}
	conn, err := retry.DoWithResult(ctx, dial, func() (*websocket.Conn, error) {
		conn, _, err := b.dialer.DialContext(ctx, endpoint, nil)
		return conn, err
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Broker", "websocketClient", "dial "+endpoint)
	}

	c := newWSClient(conn)
	b.wsClients[endpoint] = c
	go c.readLoop()
	return c, nil
}

// wsClient multiplexes calls over one websocket connection, matching replies
// to requests by sequence number.
type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	seq     atomic.Uint32

	mu      sync.Mutex
	pending map[uint32]chan reply
	dead    bool
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{conn: conn, pending: make(map[uint32]chan reply)}
}

func (c *wsClient) failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dead
}

func (c *wsClient) call(ctx context.Context, req request) (reply, error) {
	req.seq = c.seq.Add(1)
	ch := make(chan reply, 1)

	c.mu.Lock()
	if c.dead {
		c.mu.Unlock()
		return reply{}, errors.WrapTransient(errors.ErrConnectionLost, "wsClient", "call", "send")
	}
	c.pending[req.seq] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.seq)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err := c.conn.WriteMessage(websocket.BinaryMessage, encodeRequest(req))
	c.writeMu.Unlock()
	if err != nil {
		c.close()
		return reply{}, errors.WrapTransient(err, "wsClient", "call", "send")
	}

	select {
	case rep, ok := <-ch:
		if !ok {
			return reply{}, errors.WrapTransient(errors.ErrConnectionLost, "wsClient", "call", "await reply")
		}
		return rep, nil
	case <-ctx.Done():
		return reply{}, errors.WrapTransient(errors.ErrConnectionTimeout, "wsClient", "call", "await reply")
	}
}

func (c *wsClient) readLoop() {
	defer c.close()
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		rep, err := decodeReply(message)
		if err != nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[rep.seq]
		delete(c.pending, rep.seq)
		c.mu.Unlock()
		if ok {
			ch <- rep
		}
	}
}

// close fails every pending call
func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return
	}
	c.dead = true
	_ = c.conn.Close()
	for seq, ch := range c.pending {
		close(ch)
		delete(c.pending, seq)
	}
}
