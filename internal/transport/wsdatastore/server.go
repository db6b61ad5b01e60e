package wsdatastore

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/relaydb/remotestore/internal/remotestore"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is a minimal in-memory backend speaking the same Envelope protocol
// as Datastore, so the demo binary can exercise a full Watch+Write round
// trip without depending on an external service. It is not a reference
// sync backend: it acks every watch/write request immediately and never
// persists anything, grounded on the teacher's internal/realtime ServeWs
// (Upgrade, one goroutine pair per connection) rather than its Hub
// fan-out, since nothing here needs to broadcast across connections.
type Server struct {
	logger      *slog.Logger
	nextVersion int64
}

// NewServer constructs a Server ready to handle ServeHTTP.
func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logger}
}

// ServeHTTP upgrades the request to a websocket and services it until the
// peer disconnects. A single connection is either a watch session or a
// write session, decided by whichever request type it sends first.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sess := &session{
		server: s,
		conn:   conn,
		send:   make(chan Envelope, 256),
	}
	go sess.writePump()
	go sess.readPump()
}

type sessionMode int

const (
	modeUnknown sessionMode = iota
	modeWatch
	modeWrite
)

type session struct {
	server *Server
	conn   *websocket.Conn
	send   chan Envelope

	mu   sync.Mutex
	mode sessionMode
}

func (sess *session) readPump() {
	defer func() {
		close(sess.send)
		sess.conn.Close()
	}()
	sess.conn.SetReadLimit(maxMessageSize)
	sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		sess.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			sess.server.logger.Warn("server frame decode failed", "error", err)
			continue
		}
		sess.handle(env)
	}
}

func (sess *session) handle(env Envelope) {
	switch env.Type {
	case typeWatchRequest:
		sess.setMode(modeWatch)
		var p queryDataPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		sess.enqueueSend(Envelope{
			Type: typeTargetChange,
			ID:   uuid.New().String(),
			Payload: mustMarshal(targetChangePayload{
				Kind:      int(remotestore.TargetChangeAdded),
				TargetIDs: []int32{p.TargetID},
				CauseOK:   true,
			}),
		})
		version := atomic.AddInt64(&sess.server.nextVersion, 1)
		sess.enqueueSend(Envelope{
			Type: typeTargetChange,
			ID:   uuid.New().String(),
			Payload: mustMarshal(targetChangePayload{
				Kind:            int(remotestore.TargetChangeNoChange),
				TargetIDs:       []int32{p.TargetID},
				CauseOK:         true,
				SnapshotVersion: version,
			}),
		})
	case typeUnwatchRequest:
		// No wire acknowledgement: the client removes the target locally.
	case typeWriteHandshake:
		sess.setMode(modeWrite)
		sess.enqueueSend(Envelope{
			Type:    typeHandshakeAck,
			ID:      uuid.New().String(),
			Payload: mustMarshal(handshakeAckPayload{StreamToken: []byte(uuid.New().String())}),
		})
	case typeWriteMutations:
		var p writeMutationsPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		version := atomic.AddInt64(&sess.server.nextVersion, 1)
		results := make([]mutationResultEntry, len(p.Mutations))
		for i, m := range p.Mutations {
			results[i] = mutationResultEntry{DocumentKey: m.DocumentKey, Version: version}
		}
		sess.enqueueSend(Envelope{
			Type: typeMutationResult,
			ID:   uuid.New().String(),
			Payload: mustMarshal(mutationResultPayload{
				CommitVersion: version,
				Results:       results,
			}),
		})
	}
}

func (sess *session) setMode(mode sessionMode) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.mode == modeUnknown {
		sess.mode = mode
	}
}

func (sess *session) enqueueSend(env Envelope) {
	select {
	case sess.send <- env:
	default:
		sess.server.logger.Warn("server send buffer full, dropping frame", "type", env.Type)
	}
}

func (sess *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case env, ok := <-sess.send:
			sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				sess.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sess.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
