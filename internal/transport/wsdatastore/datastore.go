// Package wsdatastore is a reference implementation of remotestore.Datastore
// over two long-lived gorilla/websocket connections, one per stream. It is
// grounded on the teacher's only non-generated duplex client wire pattern
// (internal/realtime/client.go): tagged BaseMessage-style JSON frames, a
// dedicated read goroutine and a dedicated write goroutine per connection,
// and a ping/pong keep-alive on a fixed period.
package wsdatastore

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relaydb/remotestore/internal/remotestore"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// Datastore dials a watch connection and a write connection to the same
// backend URL on demand. Enqueue must be wired to the owning RemoteStore's
// Enqueue method before Start is called, so every stream callback this
// package delivers runs serialized on the Remote Store's worker instead of
// inline on a read-loop goroutine.
type Datastore struct {
	logger  *slog.Logger
	url     string
	header  http.Header
	dialer  *websocket.Dialer
	enqueue func(func())

	permanentErrorCodes      map[string]bool
	permanentWriteErrorCodes map[string]bool
}

// New constructs a Datastore dialing url for both streams. permanentCodes
// and permanentWriteCodes classify error codes the backend reports in a
// close frame as permanent (non-retryable) versus transient, per §4.6.1;
// anything not listed is treated as transient.
func New(logger *slog.Logger, url string, header http.Header, permanentCodes, permanentWriteCodes []string) *Datastore {
	ds := &Datastore{
		logger:                   logger,
		url:                      url,
		header:                   header,
		dialer:                   websocket.DefaultDialer,
		permanentErrorCodes:      make(map[string]bool),
		permanentWriteErrorCodes: make(map[string]bool),
	}
	for _, c := range permanentCodes {
		ds.permanentErrorCodes[c] = true
	}
	for _, c := range permanentWriteCodes {
		ds.permanentWriteErrorCodes[c] = true
	}
	return ds
}

// SetEnqueue wires the owning RemoteStore's worker queue. Must be called
// before any stream is started.
func (d *Datastore) SetEnqueue(enqueue func(func())) {
	d.enqueue = enqueue
}

// Start is a no-op: connections are dialed lazily per stream, not eagerly
// for the whole datastore.
func (d *Datastore) Start(ctx context.Context) error { return nil }

// Shutdown is a no-op: each stream's Stop() closes its own connection.
func (d *Datastore) Shutdown(ctx context.Context) error { return nil }

// IsPermanentError classifies a watch/handshake close code.
func (d *Datastore) IsPermanentError(status remotestore.Status) bool {
	return d.permanentErrorCodes[status.Code]
}

// IsPermanentWriteError classifies a write close code.
func (d *Datastore) IsPermanentWriteError(status remotestore.Status) bool {
	return d.permanentWriteErrorCodes[status.Code]
}

// NewTransaction is not implemented by this reference transport: the
// backend this package talks to is message-oriented, not the document
// database a real Transaction would run against.
func (d *Datastore) NewTransaction(ctx context.Context) (remotestore.Transaction, error) {
	return nil, fmt.Errorf("wsdatastore: transactions not supported by this transport")
}

// CreateWatchStream returns a fresh, not yet dialed watch connection; its
// Start dials the backend and starts pumping frames to/from delegate, whose
// methods are always invoked through d.enqueue.
func (d *Datastore) CreateWatchStream(delegate remotestore.WatchStreamEvents) remotestore.WatchStreamHandle {
	return &watchConn{
		ds:       d,
		delegate: delegate,
		send:     make(chan Envelope, 256),
	}
}

// CreateWriteStream returns a fresh, not yet dialed write connection; its
// Start dials the backend and starts pumping frames to/from delegate.
func (d *Datastore) CreateWriteStream(delegate remotestore.WriteStreamEvents) remotestore.WriteStreamHandle {
	return &writeConn{
		ds:       d,
		delegate: delegate,
		send:     make(chan Envelope, 256),
	}
}

func closeStatus(code string) remotestore.Status {
	if code == "" {
		return remotestore.StatusOK
	}
	return remotestore.Status{OK: false, Code: code}
}
