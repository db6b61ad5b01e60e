package remotestore

import "context"

// fakeDatastore, fakeWatchHandle, fakeWriteHandle, fakeLocalStore and
// fakeSyncEngine are minimal, deterministic collaborator fakes, in the style
// of small interface fakes next to the thing under test rather than a
// mocking framework with call assertions -- the acceptance scenarios need
// real state, not call recording.

type fakeDatastore struct {
	watchHandle *fakeWatchHandle
	writeHandle *fakeWriteHandle

	permanentErrorCodes      map[string]bool
	permanentWriteErrorCodes map[string]bool
}

func newFakeDatastore() *fakeDatastore {
	return &fakeDatastore{
		permanentErrorCodes:      make(map[string]bool),
		permanentWriteErrorCodes: make(map[string]bool),
	}
}

func (d *fakeDatastore) Start(ctx context.Context) error    { return nil }
func (d *fakeDatastore) Shutdown(ctx context.Context) error  { return nil }

func (d *fakeDatastore) CreateWatchStream(delegate WatchStreamEvents) WatchStreamHandle {
	d.watchHandle = &fakeWatchHandle{delegate: delegate}
	return d.watchHandle
}

func (d *fakeDatastore) CreateWriteStream(delegate WriteStreamEvents) WriteStreamHandle {
	d.writeHandle = &fakeWriteHandle{delegate: delegate}
	return d.writeHandle
}

func (d *fakeDatastore) IsPermanentError(status Status) bool {
	return d.permanentErrorCodes[status.Code]
}

func (d *fakeDatastore) IsPermanentWriteError(status Status) bool {
	return d.permanentWriteErrorCodes[status.Code]
}

func (d *fakeDatastore) NewTransaction(ctx context.Context) (Transaction, error) {
	return nil, nil
}

type fakeWatchHandle struct {
	delegate WatchStreamEvents

	started bool
	open    bool

	sentWatch   []QueryData
	sentUnwatch []TargetID
}

func (h *fakeWatchHandle) Start()        { h.started = true; h.open = true }
func (h *fakeWatchHandle) Stop()         { h.open = false; h.started = false }
func (h *fakeWatchHandle) IsStarted() bool { return h.started }
func (h *fakeWatchHandle) IsOpen() bool    { return h.open }
func (h *fakeWatchHandle) MarkIdle()       {}

func (h *fakeWatchHandle) SendWatchRequest(qd QueryData) {
	h.sentWatch = append(h.sentWatch, qd)
}

func (h *fakeWatchHandle) SendUnwatchRequest(id TargetID) {
	h.sentUnwatch = append(h.sentUnwatch, id)
}

type fakeWriteHandle struct {
	delegate WriteStreamEvents

	started bool
	open    bool

	handshakeToken []byte
	streamToken    []byte
	sentBatches    []MutationBatch
}

func (h *fakeWriteHandle) Start()        { h.started = true; h.open = true }
func (h *fakeWriteHandle) Stop()         { h.open = false; h.started = false }
func (h *fakeWriteHandle) IsStarted() bool { return h.started }
func (h *fakeWriteHandle) IsOpen() bool    { return h.open }
func (h *fakeWriteHandle) MarkIdle()       {}

func (h *fakeWriteHandle) WriteHandshake(lastStreamToken []byte) {
	h.handshakeToken = lastStreamToken
	h.streamToken = append([]byte{}, lastStreamToken...)
}

func (h *fakeWriteHandle) WriteMutations(batch MutationBatch) {
	h.sentBatches = append(h.sentBatches, batch)
}

func (h *fakeWriteHandle) GetLastStreamToken() []byte { return h.streamToken }

type fakeLocalStore struct {
	pending          []MutationBatch
	lastStreamToken  []byte
	lastRemoteVersion SnapshotVersion
}

func (s *fakeLocalStore) NextMutationBatchAfter(batchID BatchID) (MutationBatch, bool) {
	for _, b := range s.pending {
		if b.BatchID > batchID {
			return b, true
		}
	}
	return MutationBatch{}, false
}

func (s *fakeLocalStore) LastStreamToken() []byte          { return s.lastStreamToken }
func (s *fakeLocalStore) SetLastStreamToken(token []byte)  { s.lastStreamToken = token }
func (s *fakeLocalStore) LastRemoteSnapshotVersion() SnapshotVersion {
	return s.lastRemoteVersion
}

type fakeSyncEngine struct {
	events          []RemoteEvent
	rejectedListens map[TargetID]error
	writes          []WriteResult
	rejectedWrites  map[BatchID]error
	onlineStates    []OnlineState
	remoteKeys      map[TargetID]DocumentKeySet
}

func newFakeSyncEngine() *fakeSyncEngine {
	return &fakeSyncEngine{
		rejectedListens: make(map[TargetID]error),
		rejectedWrites:  make(map[BatchID]error),
		remoteKeys:      make(map[TargetID]DocumentKeySet),
	}
}

func (e *fakeSyncEngine) ApplyRemoteEvent(event RemoteEvent) {
	e.events = append(e.events, event)
}

func (e *fakeSyncEngine) RejectListen(id TargetID, err error) {
	e.rejectedListens[id] = err
}

func (e *fakeSyncEngine) ApplySuccessfulWrite(result WriteResult) {
	e.writes = append(e.writes, result)
}

func (e *fakeSyncEngine) RejectFailedWrite(batchID BatchID, err error) {
	e.rejectedWrites[batchID] = err
}

func (e *fakeSyncEngine) HandleOnlineStateChange(state OnlineState) {
	e.onlineStates = append(e.onlineStates, state)
}

func (e *fakeSyncEngine) RemoteKeysForTarget(id TargetID) DocumentKeySet {
	return e.remoteKeys[id]
}
