package wsdatastore

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/relaydb/remotestore/internal/remotestore"
)

// watchConn is the transport-facing watch stream: one websocket connection,
// a readPump and a writePump goroutine, grounded on
// internal/realtime/client.go's Client.readPump/writePump.
type watchConn struct {
	ds       *Datastore
	delegate remotestore.WatchStreamEvents

	mu      sync.Mutex
	conn    *websocket.Conn
	started bool
	closing bool

	send chan Envelope
}

func (c *watchConn) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.connect()
}

func (c *watchConn) connect() {
	conn, _, err := c.ds.dialer.Dial(c.ds.url, c.ds.header)
	if err != nil {
		c.ds.logger.Warn("watch stream dial failed", "error", err)
		c.deliverClose(remotestore.Status{OK: false, Code: "unavailable", Err: err})
		return
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.writePump()
	go c.readPump()

	c.ds.enqueue(c.delegate.OnWatchOpen)
}

func (c *watchConn) Stop() {
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

func (c *watchConn) IsStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && !c.closing
}

func (c *watchConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.closing
}

// MarkIdle closes the connection as if the backend had nothing left to say;
// delivered as a graceful close.
func (c *watchConn) MarkIdle() {
	c.Stop()
}

func (c *watchConn) SendWatchRequest(qd remotestore.QueryData) {
	filters := make([]filterPayload, 0, len(qd.Query.Filters))
	for _, f := range qd.Query.Filters {
		filters = append(filters, filterPayload{Field: f.Field, Op: string(f.Op), Value: f.Value})
	}
	payload := queryDataPayload{
		TargetID:        int32(qd.TargetID),
		Collection:      qd.Query.Collection,
		Filters:         filters,
		SnapshotVersion: int64(qd.SnapshotVersion),
		ResumeToken:     qd.ResumeToken,
		SequenceNumber:  qd.SequenceNumber,
		Purpose:         int(qd.Purpose),
	}
	c.enqueueSend(Envelope{Type: typeWatchRequest, ID: uuid.New().String(), Payload: mustMarshal(payload)})
}

func (c *watchConn) SendUnwatchRequest(id remotestore.TargetID) {
	c.enqueueSend(Envelope{Type: typeUnwatchRequest, ID: uuid.New().String(), Payload: mustMarshal(unwatchPayload{TargetID: int32(id)})})
}

func (c *watchConn) enqueueSend(env Envelope) {
	select {
	case c.send <- env:
	default:
		c.ds.logger.Warn("watch stream send buffer full, dropping frame", "type", env.Type)
	}
}

func (c *watchConn) readPump() {
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
			c.ds.logger.Warn("watch stream frame decode failed", "error", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *watchConn) dispatch(env Envelope) {
	switch env.Type {
	case typeTargetChange:
		var p targetChangePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		c.ds.enqueue(func() {
			c.delegate.OnWatchChange(remotestore.WatchChange{TargetChange: targetChangeFromPayload(p)})
		})
	case typeDocumentChange:
		var p documentChangePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		c.ds.enqueue(func() {
			c.delegate.OnWatchChange(remotestore.WatchChange{DocumentChange: documentChangeFromPayload(p)})
		})
	case typeExistenceFilter:
		var p existenceFilterPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		c.ds.enqueue(func() {
			c.delegate.OnWatchChange(remotestore.WatchChange{ExistenceFilter: &remotestore.ExistenceFilter{
				TargetID: remotestore.TargetID(p.TargetID),
				Count:    p.Count,
			}})
		})
	case typeWatchClose:
		var p closePayload
		_ = json.Unmarshal(env.Payload, &p)
		c.deliverClose(remotestore.Status{OK: p.OK, Code: p.Code})
	}
}

func (c *watchConn) deliverClose(status remotestore.Status) {
	c.mu.Lock()
	c.closing = true
	c.started = false
	c.mu.Unlock()
	c.ds.enqueue(func() { c.delegate.OnWatchClose(status) })
}

func (c *watchConn) writePump() {
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

func targetChangeFromPayload(p targetChangePayload) *remotestore.TargetChange {
	ids := make([]remotestore.TargetID, len(p.TargetIDs))
	for i, id := range p.TargetIDs {
		ids[i] = remotestore.TargetID(id)
	}
	version := remotestore.SnapshotVersion(p.SnapshotVersion)
	if p.SnapshotVersion == 0 {
		version = remotestore.SnapshotVersionNone
	}
	return &remotestore.TargetChange{
		Kind:            remotestore.TargetChangeKind(p.Kind),
		TargetIDs:       ids,
		Cause:           remotestore.Status{OK: p.CauseOK, Code: p.CauseCode},
		ResumeToken:     p.ResumeToken,
		SnapshotVersion: version,
	}
}

func documentChangeFromPayload(p documentChangePayload) *remotestore.DocumentChange {
	updated := make([]remotestore.TargetID, len(p.UpdatedTargets))
	for i, id := range p.UpdatedTargets {
		updated[i] = remotestore.TargetID(id)
	}
	removed := make([]remotestore.TargetID, len(p.RemovedTargets))
	for i, id := range p.RemovedTargets {
		removed[i] = remotestore.TargetID(id)
	}
	return &remotestore.DocumentChange{
		DocumentKey:    p.DocumentKey,
		Document:       p.Document,
		Deleted:        p.Deleted,
		UpdatedTargets: updated,
		RemovedTargets: removed,
	}
}
