package remotestore

import "context"

// SyncEngine is the consumer-side collaborator (§6): it receives remote
// events and write results, and answers remote-key queries the aggregator
// needs to reconcile existence filters. The Remote Store never evaluates
// queries or persists anything; all of that is the sync engine's job.
type SyncEngine interface {
	ApplyRemoteEvent(event RemoteEvent)
	RejectListen(id TargetID, err error)
	ApplySuccessfulWrite(result WriteResult)
	RejectFailedWrite(batchID BatchID, err error)
	HandleOnlineStateChange(state OnlineState)
	RemoteKeysForTarget(id TargetID) DocumentKeySet
}

// LocalStore is the dependency collaborator (§6) holding durable query
// metadata and the mutation queue. Persistence is explicitly out of scope
// for this module; the Remote Store only calls through this interface.
type LocalStore interface {
	NextMutationBatchAfter(batchID BatchID) (MutationBatch, bool)
	LastStreamToken() []byte
	SetLastStreamToken(token []byte)
	LastRemoteSnapshotVersion() SnapshotVersion
}

// Datastore is the transport dependency (§6): actual duplex streams and
// certificate loading live behind this boundary. Reconnect backoff is not
// part of it: WatchStream and WriteStream schedule their own restarts. The
// Remote Store core never speaks a wire protocol directly.
type Datastore interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
	CreateWatchStream(delegate WatchStreamEvents) WatchStreamHandle
	CreateWriteStream(delegate WriteStreamEvents) WriteStreamHandle
	IsPermanentError(status Status) bool
	IsPermanentWriteError(status Status) bool
	NewTransaction(ctx context.Context) (Transaction, error)
}

// Transaction is a one-shot, datastore-bound transaction object. Its
// contents are opaque to the Remote Store: it is a passthrough factory
// (§4.7 Transaction()).
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// StreamHandle is the contract shared by both stream kinds (§6).
type StreamHandle interface {
	Start()
	Stop()
	IsStarted() bool
	IsOpen() bool
	MarkIdle()
}

// WatchStreamHandle is the transport-facing watch stream.
type WatchStreamHandle interface {
	StreamHandle
	SendWatchRequest(qd QueryData)
	SendUnwatchRequest(id TargetID)
}

// WriteStreamHandle is the transport-facing write stream. Backoff timing on
// restart is owned by the core WriteStream state machine, not the
// transport, so InhibitBackoff lives there instead of on this handle (see
// WriteStream.InhibitBackoff).
type WriteStreamHandle interface {
	StreamHandle
	WriteHandshake(lastStreamToken []byte)
	WriteMutations(batch MutationBatch)
	GetLastStreamToken() []byte
}

// WatchStreamEvents is the capability interface the transport calls back
// into (design note: "delegate/callback inheritance... becomes two small
// capability interfaces implemented by the Remote Store", §9). Every method
// here is invoked on the worker: the transport must re-enter via the worker
// queue, never inline.
type WatchStreamEvents interface {
	OnWatchOpen()
	OnWatchChange(change WatchChange)
	OnWatchClose(status Status)
}

// WriteStreamEvents is the write-stream analog of WatchStreamEvents.
type WriteStreamEvents interface {
	OnWriteOpen()
	OnHandshakeComplete()
	OnMutationResult(commitVersion SnapshotVersion, results []MutationResult)
	OnWriteClose(status Status)
}
