package remotestore

import "fmt"

// ListenTargetRegistry is the mapping TargetID -> QueryData; source of
// truth for which targets the client currently wants. Per the
// single-threaded-cooperative concurrency model, it is mutated only on the
// RemoteStore worker and carries no internal locking of its own.
type ListenTargetRegistry struct {
	entries map[TargetID]QueryData
	order   []TargetID // insertion order, for stable re-send on reopen
}

// NewListenTargetRegistry returns an empty registry.
func NewListenTargetRegistry() *ListenTargetRegistry {
	return &ListenTargetRegistry{entries: make(map[TargetID]QueryData)}
}

// Listen inserts qd. It is a programming error to Listen a TargetID that is
// already present.
func (r *ListenTargetRegistry) Listen(qd QueryData) {
	if _, exists := r.entries[qd.TargetID]; exists {
		panic(fmt.Sprintf("remotestore: Listen called for already-registered target %d", qd.TargetID))
	}
	r.entries[qd.TargetID] = qd
	r.order = append(r.order, qd.TargetID)
}

// Unlisten removes id. It is a programming error to Unlisten a TargetID
// that is not present.
func (r *ListenTargetRegistry) Unlisten(id TargetID) {
	if _, exists := r.entries[id]; !exists {
		panic(fmt.Sprintf("remotestore: Unlisten called for unregistered target %d", id))
	}
	delete(r.entries, id)
	r.removeFromOrder(id)
}

// removeOnTargetError drops id without asserting presence: used by the
// target-error path, where the server itself declared the target gone.
func (r *ListenTargetRegistry) removeOnTargetError(id TargetID) {
	delete(r.entries, id)
	r.removeFromOrder(id)
}

func (r *ListenTargetRegistry) removeFromOrder(id TargetID) {
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// UpdateFromRemoteEvent replaces id's entry with one carrying the new
// snapshot version and resume token, preserving sequence number and
// purpose, if id is still present and token is non-empty.
func (r *ListenTargetRegistry) UpdateFromRemoteEvent(id TargetID, version SnapshotVersion, token []byte) {
	qd, exists := r.entries[id]
	if !exists || len(token) == 0 {
		return
	}
	r.entries[id] = qd.withResumeToken(version, token)
}

// ClearResumeTokenForExistenceFilterMismatch replaces id's entry with a copy
// that has its resume token cleared and purpose reset to Listen (sequence
// number preserved), part of the existence-filter-mismatch recovery
// procedure. Returns false if id is no longer present.
func (r *ListenTargetRegistry) ClearResumeTokenForExistenceFilterMismatch(id TargetID) (QueryData, bool) {
	qd, exists := r.entries[id]
	if !exists {
		return QueryData{}, false
	}
	cleared := qd.clearedForExistenceFilterMismatch()
	r.entries[id] = cleared
	return cleared, true
}

// Get returns id's QueryData, if present.
func (r *ListenTargetRegistry) Get(id TargetID) (QueryData, bool) {
	qd, ok := r.entries[id]
	return qd, ok
}

// Contains reports whether id is currently registered.
func (r *ListenTargetRegistry) Contains(id TargetID) bool {
	_, ok := r.entries[id]
	return ok
}

// Len returns the number of registered targets.
func (r *ListenTargetRegistry) Len() int {
	return len(r.entries)
}

// IsEmpty reports whether the registry has no registered targets.
func (r *ListenTargetRegistry) IsEmpty() bool {
	return len(r.entries) == 0
}

// All returns every registered QueryData in stable insertion order, used to
// resend active listens in a fixed order on stream (re)open.
func (r *ListenTargetRegistry) All() []QueryData {
	result := make([]QueryData, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.entries[id])
	}
	return result
}
