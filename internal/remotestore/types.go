// Package remotestore implements the client-side coordinator that mediates
// between a local mutation log / query cache and a remote document-sync
// backend over a Watch stream and a Write stream.
package remotestore

import "fmt"

// TargetID is the stable identity of a server-side subscription. It is
// always positive; zero is never issued by a registry.
type TargetID int32

// SnapshotVersion is a monotone, non-decreasing logical clock at which the
// server guarantees consistency across all targets in a RemoteEvent.
type SnapshotVersion int64

// SnapshotVersionNone marks the absence of a snapshot-carrying frame.
const SnapshotVersionNone SnapshotVersion = -1

// BatchID is the strictly increasing identity of a MutationBatch.
type BatchID int64

// Purpose describes why a target is being watched. It affects only the wire
// request; ExistenceFilterMismatch and LimboResolution purposes are never
// persisted back into the ListenTargetRegistry.
type Purpose int

const (
	PurposeListen Purpose = iota
	PurposeExistenceFilterMismatch
	PurposeLimboResolution
)

func (p Purpose) String() string {
	switch p {
	case PurposeListen:
		return "listen"
	case PurposeExistenceFilterMismatch:
		return "existence-filter-mismatch"
	case PurposeLimboResolution:
		return "limbo-resolution"
	default:
		return "unknown"
	}
}

// QueryData is what the client knows about one target.
type QueryData struct {
	TargetID        TargetID
	Query           Query
	SnapshotVersion SnapshotVersion
	ResumeToken     []byte
	SequenceNumber  int64
	Purpose         Purpose
}

// withResumeToken returns a copy with a new snapshot version and resume
// token, preserving sequence number and purpose, as required by
// ListenTargetRegistry.UpdateFromRemoteEvent.
func (qd QueryData) withResumeToken(version SnapshotVersion, token []byte) QueryData {
	next := qd
	next.SnapshotVersion = version
	next.ResumeToken = token
	return next
}

// clearedForExistenceFilterMismatch returns the registry-stable copy (purpose
// Listen, preserved sequence number) with the resume token cleared, used by
// the existence-filter-mismatch recovery procedure.
func (qd QueryData) clearedForExistenceFilterMismatch() QueryData {
	next := qd
	next.ResumeToken = nil
	next.Purpose = PurposeListen
	return next
}

// transientForExistenceFilterMismatch returns a never-persisted QueryData
// carrying purpose ExistenceFilterMismatch, used only for the re-watch
// request sent during recovery.
func (qd QueryData) transientForExistenceFilterMismatch() QueryData {
	next := qd
	next.ResumeToken = nil
	next.Purpose = PurposeExistenceFilterMismatch
	return next
}

// Mutation is a single document-level change within a MutationBatch. Its
// shape is intentionally opaque to the Remote Store: it is carried to the
// local store and the datastore transport without interpretation.
type Mutation struct {
	DocumentKey string
	Kind        string
	Fields      map[string]interface{}
}

// MutationBatch is an ordered set of mutations sharing a single commit unit.
type MutationBatch struct {
	BatchID   BatchID
	Mutations []Mutation
}

// MutationResult carries the per-mutation outcome of a committed batch.
type MutationResult struct {
	DocumentKey string
	Version     SnapshotVersion
}

// WriteResult is delivered to the sync engine on a successful write.
type WriteResult struct {
	Batch         MutationBatch
	CommitVersion SnapshotVersion
	Results       []MutationResult
	StreamToken   []byte
}

// OnlineState is the observable connectivity signal derived purely by the
// OnlineStateTracker.
type OnlineState int

const (
	OnlineStateUnknown OnlineState = iota
	OnlineStateOnline
	OnlineStateOffline
)

func (s OnlineState) String() string {
	switch s {
	case OnlineStateUnknown:
		return "unknown"
	case OnlineStateOnline:
		return "online"
	case OnlineStateOffline:
		return "offline"
	default:
		return "invalid"
	}
}

// Status is the minimal transport-reported outcome of a stream interruption.
// OK means a graceful, intentional close; a non-OK status carries a
// transport-defined code the datastore classifies via IsPermanentError /
// IsPermanentWriteError.
type Status struct {
	OK   bool
	Code string
	Err  error
}

func (s Status) String() string {
	if s.OK {
		return "ok"
	}
	if s.Err != nil {
		return fmt.Sprintf("%s: %v", s.Code, s.Err)
	}
	return s.Code
}

// StatusOK is the canonical graceful-close status.
var StatusOK = Status{OK: true, Code: "ok"}

// TargetChangeKind tags the variant carried by a TargetChange frame (design
// note: tagged variants for watch frames, dispatch on tag, never downcast).
type TargetChangeKind int

const (
	TargetChangeAdded TargetChangeKind = iota
	TargetChangeRemoved
	TargetChangeCurrent
	TargetChangeNoChange
	TargetChangeReset
)

func (k TargetChangeKind) String() string {
	switch k {
	case TargetChangeAdded:
		return "added"
	case TargetChangeRemoved:
		return "removed"
	case TargetChangeCurrent:
		return "current"
	case TargetChangeNoChange:
		return "no-change"
	case TargetChangeReset:
		return "reset"
	default:
		return "unknown"
	}
}

// TargetChange is one of the three watch-frame variants.
type TargetChange struct {
	Kind            TargetChangeKind
	TargetIDs       []TargetID
	Cause           Status
	ResumeToken     []byte
	SnapshotVersion SnapshotVersion
}

// DocumentChange is one of the three watch-frame variants: a document add,
// modify, or delete affecting a set of targets.
type DocumentChange struct {
	DocumentKey    string
	Document       map[string]interface{}
	Deleted        bool
	UpdatedTargets []TargetID
	RemovedTargets []TargetID
}

// ExistenceFilter is one of the three watch-frame variants: a compact
// server-side summary of the document count in a target.
type ExistenceFilter struct {
	TargetID TargetID
	Count    int
}

// WatchChange is the tagged sum type TargetChange | DocumentChange |
// ExistenceFilter. Exactly one field is non-nil.
type WatchChange struct {
	TargetChange    *TargetChange
	DocumentChange  *DocumentChange
	ExistenceFilter *ExistenceFilter
}

// TargetState is the per-target view folded into a RemoteEvent.
type TargetState struct {
	SnapshotVersion SnapshotVersion
	ResumeToken     []byte
	ChangedDocs     []string
	RemovedDocs     []string
	Current         bool
}

// RemoteEvent is a consistent snapshot emitted by the WatchChangeAggregator
// at a single SnapshotVersion.
type RemoteEvent struct {
	SnapshotVersion   SnapshotVersion
	TargetChanges     map[TargetID]TargetState
	TargetMismatches  map[TargetID]struct{}
	DocumentUpdates   map[string]map[string]interface{}
	ResolvedDocuments map[string]struct{}
}

// DocumentKeySet is a small helper alias used by RemoteKeysForTarget.
type DocumentKeySet map[string]struct{}
