package wsdatastore

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/relaydb/remotestore/internal/remotestore"
)

// writeConn is the transport-facing write stream, structured identically to
// watchConn but over the handshake/mutation-dispatch wire shape.
type writeConn struct {
	ds       *Datastore
	delegate remotestore.WriteStreamEvents

	mu      sync.Mutex
	conn    *websocket.Conn
	started bool
	closing bool

	streamToken []byte
	send        chan Envelope
}

func (c *writeConn) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.connect()
}

func (c *writeConn) connect() {
	conn, _, err := c.ds.dialer.Dial(c.ds.url, c.ds.header)
	if err != nil {
		c.ds.logger.Warn("write stream dial failed", "error", err)
		c.deliverClose(remotestore.Status{OK: false, Code: "unavailable", Err: err})
		return
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.writePump()
	go c.readPump()

	c.ds.enqueue(c.delegate.OnWriteOpen)
}

func (c *writeConn) Stop() {
	c.mu.Lock()
	if !c.started || c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (c *writeConn) IsStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && !c.closing
}

func (c *writeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.closing
}

func (c *writeConn) MarkIdle() {
	c.Stop()
}

func (c *writeConn) WriteHandshake(lastStreamToken []byte) {
	c.enqueueSend(Envelope{Type: typeWriteHandshake, ID: uuid.New().String(), Payload: mustMarshal(writeHandshakePayload{LastStreamToken: lastStreamToken})})
}

func (c *writeConn) WriteMutations(batch remotestore.MutationBatch) {
	muts := make([]mutationPayload, len(batch.Mutations))
	for i, m := range batch.Mutations {
		muts[i] = mutationPayload{DocumentKey: m.DocumentKey, Kind: m.Kind, Fields: m.Fields}
	}
	c.enqueueSend(Envelope{
		Type: typeWriteMutations,
		ID:   uuid.New().String(),
		Payload: mustMarshal(writeMutationsPayload{
			BatchID:   int64(batch.BatchID),
			Mutations: muts,
		}),
	})
}

func (c *writeConn) GetLastStreamToken() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamToken
}

func (c *writeConn) enqueueSend(env Envelope) {
	select {
	case c.send <- env:
	default:
		c.ds.logger.Warn("write stream send buffer full, dropping frame", "type", env.Type)
	}
}

func (c *writeConn) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			code := "unavailable"
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				code = ""
			}
			c.deliverClose(closeStatus(code))
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.ds.logger.Warn("write stream frame decode failed", "error", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *writeConn) dispatch(env Envelope) {
	switch env.Type {
	case typeHandshakeAck:
		var p handshakeAckPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		c.mu.Lock()
		c.streamToken = p.StreamToken
		c.mu.Unlock()
		c.ds.enqueue(c.delegate.OnHandshakeComplete)
	case typeMutationResult:
		var p mutationResultPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		results := make([]remotestore.MutationResult, len(p.Results))
		for i, r := range p.Results {
			results[i] = remotestore.MutationResult{DocumentKey: r.DocumentKey, Version: remotestore.SnapshotVersion(r.Version)}
		}
		commitVersion := remotestore.SnapshotVersion(p.CommitVersion)
		c.ds.enqueue(func() { c.delegate.OnMutationResult(commitVersion, results) })
	case typeWriteClose:
		var p closePayload
		_ = json.Unmarshal(env.Payload, &p)
		c.deliverClose(remotestore.Status{OK: p.OK, Code: p.Code})
	}
}

func (c *writeConn) deliverClose(status remotestore.Status) {
	c.mu.Lock()
	c.closing = true
	c.started = false
	c.mu.Unlock()
	c.ds.enqueue(func() { c.delegate.OnWriteClose(status) })
}

func (c *writeConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case env, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
