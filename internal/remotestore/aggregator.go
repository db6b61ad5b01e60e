package remotestore

// AggregatorTargetLookup is the borrowed handle the aggregator uses purely
// for lookup when reconciling existence filters. Per design note #9 it is
// passed at construction as an interface, never owned by the aggregator.
type AggregatorTargetLookup interface {
	RemoteKeysForTarget(id TargetID) DocumentKeySet
}

// WatchChangeAggregator accepts watch-stream frames and emits a RemoteEvent
// at each consistent snapshot. This package specifies the interface and
// ships one default fold implementation; the spec treats the aggregator's
// internal algorithm as an external collaborator contract (§4.4), so other
// implementations are expected to satisfy the same interface.
type WatchChangeAggregator interface {
	RecordPendingTargetRequest(id TargetID)
	IsPendingTargetRequest(id TargetID) bool
	ClearPendingTargetRequest(id TargetID)

	HandleTargetChange(tc TargetChange)
	HandleDocumentChange(dc DocumentChange)
	HandleExistenceFilter(ef ExistenceFilter)

	CreateRemoteEvent(version SnapshotVersion) RemoteEvent
	RemoveTarget(id TargetID)
}

type accumulatedTarget struct {
	resumeToken     []byte
	snapshotVersion SnapshotVersion
	changedDocs     map[string]struct{}
	removedDocs     map[string]struct{}
	current         bool
}

func newAccumulatedTarget() *accumulatedTarget {
	return &accumulatedTarget{
		changedDocs: make(map[string]struct{}),
		removedDocs: make(map[string]struct{}),
	}
}

// defaultAggregator is the default WatchChangeAggregator implementation: a
// per-target indexed accumulation that folds into a RemoteEvent on demand,
// the same shape as the teacher's per-target Match/ProcessEvent bookkeeping
// generalized from "match subscribers to one event" into "accumulate many
// frames per target until a snapshot boundary."
type defaultAggregator struct {
	lookup AggregatorTargetLookup

	targets map[TargetID]*accumulatedTarget
	pending map[TargetID]struct{}
	dirty   map[TargetID]struct{}

	documentUpdates   map[string]map[string]interface{}
	resolvedDocuments map[string]struct{}
	targetMismatches  map[TargetID]struct{}
}

// NewWatchChangeAggregator constructs the default aggregator. lookup may be
// nil in tests that never exercise existence-filter reconciliation.
func NewWatchChangeAggregator(lookup AggregatorTargetLookup) WatchChangeAggregator {
	return &defaultAggregator{
		lookup:            lookup,
		targets:           make(map[TargetID]*accumulatedTarget),
		pending:           make(map[TargetID]struct{}),
		dirty:             make(map[TargetID]struct{}),
		documentUpdates:   make(map[string]map[string]interface{}),
		resolvedDocuments: make(map[string]struct{}),
		targetMismatches:  make(map[TargetID]struct{}),
	}
}

func (a *defaultAggregator) RecordPendingTargetRequest(id TargetID) {
	a.pending[id] = struct{}{}
}

func (a *defaultAggregator) IsPendingTargetRequest(id TargetID) bool {
	_, ok := a.pending[id]
	return ok
}

func (a *defaultAggregator) ClearPendingTargetRequest(id TargetID) {
	delete(a.pending, id)
}

func (a *defaultAggregator) target(id TargetID) *accumulatedTarget {
	t, ok := a.targets[id]
	if !ok {
		t = newAccumulatedTarget()
		a.targets[id] = t
	}
	a.dirty[id] = struct{}{}
	return t
}

func (a *defaultAggregator) HandleTargetChange(tc TargetChange) {
	switch tc.Kind {
	case TargetChangeAdded:
		for _, id := range tc.TargetIDs {
			a.target(id)
			a.ClearPendingTargetRequest(id)
		}
	case TargetChangeCurrent:
		for _, id := range tc.TargetIDs {
			a.target(id).current = true
		}
	case TargetChangeNoChange:
		for _, id := range tc.TargetIDs {
			t := a.target(id)
			if len(tc.ResumeToken) > 0 {
				t.resumeToken = tc.ResumeToken
			}
			if tc.SnapshotVersion != SnapshotVersionNone {
				t.snapshotVersion = tc.SnapshotVersion
			}
		}
	case TargetChangeReset:
		for _, id := range tc.TargetIDs {
			t := a.target(id)
			t.changedDocs = make(map[string]struct{})
			t.removedDocs = make(map[string]struct{})
			t.current = false
		}
	case TargetChangeRemoved:
		// Callers route cause!=OK removals through the per-target error
		// path (§4.5) without reaching the aggregator. A cause==OK removal
		// is a normal state transition (spec §9 open question): drop the
		// target's accumulated state here exactly like RemoveTarget.
		for _, id := range tc.TargetIDs {
			a.RemoveTarget(id)
		}
	}
}

func (a *defaultAggregator) HandleDocumentChange(dc DocumentChange) {
	for _, id := range dc.UpdatedTargets {
		t := a.target(id)
		delete(t.removedDocs, dc.DocumentKey)
		t.changedDocs[dc.DocumentKey] = struct{}{}
	}
	for _, id := range dc.RemovedTargets {
		t := a.target(id)
		delete(t.changedDocs, dc.DocumentKey)
		t.removedDocs[dc.DocumentKey] = struct{}{}
	}

	if dc.Deleted {
		delete(a.documentUpdates, dc.DocumentKey)
		a.resolvedDocuments[dc.DocumentKey] = struct{}{}
	} else if dc.Document != nil {
		a.documentUpdates[dc.DocumentKey] = dc.Document
		delete(a.resolvedDocuments, dc.DocumentKey)
	}
}

func (a *defaultAggregator) HandleExistenceFilter(ef ExistenceFilter) {
	if a.lookup == nil {
		return
	}
	localKeys := a.lookup.RemoteKeysForTarget(ef.TargetID)
	if len(localKeys) != ef.Count {
		a.targetMismatches[ef.TargetID] = struct{}{}
	}
}

func (a *defaultAggregator) CreateRemoteEvent(version SnapshotVersion) RemoteEvent {
	changes := make(map[TargetID]TargetState, len(a.dirty))
	for id := range a.dirty {
		t, ok := a.targets[id]
		if !ok {
			continue
		}
		changes[id] = TargetState{
			SnapshotVersion: t.snapshotVersion,
			ResumeToken:     t.resumeToken,
			ChangedDocs:     keysOf(t.changedDocs),
			RemovedDocs:     keysOf(t.removedDocs),
			Current:         t.current,
		}
		t.changedDocs = make(map[string]struct{})
		t.removedDocs = make(map[string]struct{})
	}
	a.dirty = make(map[TargetID]struct{})

	event := RemoteEvent{
		SnapshotVersion:   version,
		TargetChanges:     changes,
		TargetMismatches:  a.targetMismatches,
		DocumentUpdates:   a.documentUpdates,
		ResolvedDocuments: a.resolvedDocuments,
	}

	a.targetMismatches = make(map[TargetID]struct{})
	a.documentUpdates = make(map[string]map[string]interface{})
	a.resolvedDocuments = make(map[string]struct{})

	return event
}

func (a *defaultAggregator) RemoveTarget(id TargetID) {
	delete(a.targets, id)
	delete(a.pending, id)
	delete(a.dirty, id)
}

func keysOf(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
