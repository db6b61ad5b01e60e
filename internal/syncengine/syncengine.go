// Package syncengine is a minimal in-memory reference implementation of
// remotestore.SyncEngine. It is not a query engine: it tracks, per target,
// which document keys are currently believed to match it, and applies
// RemoteEvents/WriteResults the way a real query cache would, without
// actually evaluating any query predicate. Real query evaluation against
// local documents is explicitly out of scope for this module.
package syncengine

import (
	"log/slog"
	"sync"

	"github.com/relaydb/remotestore/internal/remotestore"
)

// versionSink is the subset of localstore.Store the engine needs to update
// after applying a remote event.
type versionSink interface {
	SetLastRemoteSnapshotVersion(version remotestore.SnapshotVersion)
	Ack(batchID remotestore.BatchID)
}

// Engine is a thread-safe, in-memory SyncEngine. Like localstore.Store, it
// is accessed from outside the Remote Store worker (by whatever delivers
// documents to the UI), so it keeps its own mutex.
type Engine struct {
	mu     sync.Mutex
	logger *slog.Logger
	local  versionSink

	targetKeys map[remotestore.TargetID]map[string]struct{}
	documents  map[string]map[string]interface{}

	listenErrors map[remotestore.TargetID]error
	writeErrors  map[remotestore.BatchID]error
	onlineState  remotestore.OnlineState
}

// New constructs an Engine backed by local, which must support recording
// the last applied remote snapshot version and acking committed batches.
func New(logger *slog.Logger, local versionSink) *Engine {
	return &Engine{
		logger:       logger,
		local:        local,
		targetKeys:   make(map[remotestore.TargetID]map[string]struct{}),
		documents:    make(map[string]map[string]interface{}),
		listenErrors: make(map[remotestore.TargetID]error),
		writeErrors:  make(map[remotestore.BatchID]error),
	}
}

// ApplyRemoteEvent folds a consistent RemoteEvent into the in-memory
// document/target-key maps and advances the local store's high-water mark.
func (e *Engine) ApplyRemoteEvent(event remotestore.RemoteEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for key, doc := range event.DocumentUpdates {
		e.documents[key] = doc
	}
	for key := range event.ResolvedDocuments {
		delete(e.documents, key)
	}

	for id, state := range event.TargetChanges {
		keys := e.targetKeys[id]
		if keys == nil {
			keys = make(map[string]struct{})
			e.targetKeys[id] = keys
		}
		for _, key := range state.ChangedDocs {
			keys[key] = struct{}{}
		}
		for _, key := range state.RemovedDocs {
			delete(keys, key)
		}
	}

	e.local.SetLastRemoteSnapshotVersion(event.SnapshotVersion)
}

// RejectListen records why a target was rejected and drops its local key
// set, since the server no longer recognizes that target.
func (e *Engine) RejectListen(id remotestore.TargetID, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listenErrors[id] = err
	delete(e.targetKeys, id)
	e.logger.Warn("listen rejected", "target", id, "error", err)
}

// ApplySuccessfulWrite acks the batch in the local store. The commit version
// and per-document results carried by result are not recorded.
func (e *Engine) ApplySuccessfulWrite(result remotestore.WriteResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.local.Ack(result.Batch.BatchID)
}

// RejectFailedWrite records a permanent write rejection. The batch is
// presumed already popped from the pipeline by the caller; it remains
// durable in the local store for the application to inspect or discard.
func (e *Engine) RejectFailedWrite(batchID remotestore.BatchID, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.writeErrors[batchID] = err
	e.logger.Warn("write permanently rejected", "batch", batchID, "error", err)
}

// HandleOnlineStateChange records the latest connectivity signal.
func (e *Engine) HandleOnlineStateChange(state remotestore.OnlineState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onlineState = state
}

// RemoteKeysForTarget answers the aggregator's existence-filter
// reconciliation query: which document keys does the engine currently
// believe match this target.
func (e *Engine) RemoteKeysForTarget(id remotestore.TargetID) remotestore.DocumentKeySet {
	e.mu.Lock()
	defer e.mu.Unlock()

	keys := e.targetKeys[id]
	if len(keys) == 0 {
		return nil
	}
	result := make(remotestore.DocumentKeySet, len(keys))
	for k := range keys {
		result[k] = struct{}{}
	}
	return result
}

// Document returns the last known value of a document key, for tests and
// the demo binary.
func (e *Engine) Document(key string) (map[string]interface{}, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	doc, ok := e.documents[key]
	return doc, ok
}

// OnlineState returns the last state reported via HandleOnlineStateChange.
func (e *Engine) OnlineState() remotestore.OnlineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.onlineState
}

// ListenError returns the error a target was most recently rejected with,
// if any.
func (e *Engine) ListenError(id remotestore.TargetID) (error, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	err, ok := e.listenErrors[id]
	return err, ok
}
