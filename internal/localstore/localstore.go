// Package localstore is a minimal in-memory reference implementation of
// remotestore.LocalStore. Durable persistence is explicitly out of scope
// for the Remote Store itself; this package exists so tests and the demo
// binary have a real collaborator with real FIFO and version bookkeeping
// instead of a call-recording mock.
package localstore

import (
	"sort"
	"sync"

	"github.com/relaydb/remotestore/internal/remotestore"
)

// Store is a thread-safe, in-memory LocalStore. Unlike the Remote Store's
// own collaborators, Store is used from outside the worker (tests enqueue
// batches concurrently with the worker draining them), so it keeps its own
// mutex rather than relying on single-threaded-cooperative access.
type Store struct {
	mu sync.Mutex

	batches         map[remotestore.BatchID]remotestore.MutationBatch
	lastStreamToken []byte
	lastRemoteVersion remotestore.SnapshotVersion
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		batches:           make(map[remotestore.BatchID]remotestore.MutationBatch),
		lastRemoteVersion: remotestore.SnapshotVersionNone,
	}
}

// Enqueue adds a mutation batch to the durable queue, as if a local write
// had just been issued by the application.
func (s *Store) Enqueue(batch remotestore.MutationBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batch.BatchID] = batch
}

// NextMutationBatchAfter returns the smallest queued batch with a BatchID
// strictly greater than batchID, implementing the ordered-pull contract
// FillWritePipeline depends on.
func (s *Store) NextMutationBatchAfter(batchID remotestore.BatchID) (remotestore.MutationBatch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]remotestore.BatchID, 0, len(s.batches))
	for id := range s.batches {
		if id > batchID {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return remotestore.MutationBatch{}, false
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return s.batches[ids[0]], true
}

// Ack removes a batch from the durable queue, called once the Remote Store
// reports it committed successfully.
func (s *Store) Ack(batchID remotestore.BatchID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.batches, batchID)
}

// LastStreamToken returns the most recently persisted write-stream token.
func (s *Store) LastStreamToken() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStreamToken
}

// SetLastStreamToken persists token, overwriting whatever was stored.
func (s *Store) SetLastStreamToken(token []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastStreamToken = token
}

// LastRemoteSnapshotVersion returns the highest SnapshotVersion applied so
// far, or SnapshotVersionNone if none has been applied yet.
func (s *Store) LastRemoteSnapshotVersion() remotestore.SnapshotVersion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRemoteVersion
}

// SetLastRemoteSnapshotVersion records version as the high-water mark,
// called by the sync engine after it applies a RemoteEvent.
func (s *Store) SetLastRemoteSnapshotVersion(version remotestore.SnapshotVersion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version > s.lastRemoteVersion {
		s.lastRemoteVersion = version
	}
}
