package remotestore

import (
	"log/slog"
	"math/rand"
	"time"
)

// WatchStreamState is the watch-stream state machine's current state
// (§4.5): NotStarted -> Starting -> Open -> Stopped, with Open -> Stopped
// on any interruption.
type WatchStreamState int

const (
	WatchNotStarted WatchStreamState = iota
	WatchStarting
	WatchOpen
	WatchStopped
)

func (s WatchStreamState) String() string {
	switch s {
	case WatchNotStarted:
		return "not-started"
	case WatchStarting:
		return "starting"
	case WatchOpen:
		return "open"
	case WatchStopped:
		return "stopped"
	default:
		return "invalid"
	}
}

// WatchStream is the watch-stream state machine (§4.5): starts/stops the
// watch stream, resends active listens on (re)open, routes frames to the
// aggregator, and drives the OnlineStateTracker. It is the transport
// delegate passed to Datastore.CreateWatchStream, grounded end to end on
// the teacher's remoteStream (state/backoff/reconnect/resubscribeAll).
type WatchStream struct {
	logger        *slog.Logger
	cfg           Config
	datastore     Datastore
	registry      *ListenTargetRegistry
	onlineTracker *OnlineStateTracker
	localStore    LocalStore
	syncEngine    SyncEngine
	enqueue       func(func())

	state          WatchStreamState
	networkEnabled bool
	handle         WatchStreamHandle
	aggregator     WatchChangeAggregator

	backoff time.Duration
	retries int
	timer   *time.Timer
}

// NewWatchStream constructs a watch stream in state NotStarted.
func NewWatchStream(
	logger *slog.Logger,
	cfg Config,
	datastore Datastore,
	registry *ListenTargetRegistry,
	onlineTracker *OnlineStateTracker,
	localStore LocalStore,
	syncEngine SyncEngine,
	enqueue func(func()),
) *WatchStream {
	return &WatchStream{
		logger:        logger.With("stream", "watch"),
		cfg:           cfg,
		datastore:     datastore,
		registry:      registry,
		onlineTracker: onlineTracker,
		localStore:    localStore,
		syncEngine:    syncEngine,
		enqueue:       enqueue,
		state:         WatchNotStarted,
		backoff:       cfg.InitialBackoff,
	}
}

// State returns the current state, mostly for tests and diagnostics.
func (ws *WatchStream) State() WatchStreamState { return ws.state }

// IsStarted reports whether the stream is anywhere between Starting and
// Open (inclusive); Stopped and NotStarted both count as not started.
func (ws *WatchStream) IsStarted() bool {
	return ws.state == WatchStarting || ws.state == WatchOpen
}

// IsOpen reports whether the stream has an active connection.
func (ws *WatchStream) IsOpen() bool { return ws.state == WatchOpen }

// SetNetworkEnabled mirrors the coordinator's NetworkEnabled flag, used by
// ShouldStart and by the post-interruption restart decision.
func (ws *WatchStream) SetNetworkEnabled(enabled bool) { ws.networkEnabled = enabled }

// ShouldStart is NetworkEnabled && !Started && registry non-empty (§4.5,
// §3 invariant 3).
func (ws *WatchStream) ShouldStart() bool {
	return ws.networkEnabled && !ws.IsStarted() && !ws.registry.IsEmpty()
}

// Start enters Starting: allocates a fresh aggregator and notifies the
// online tracker (§4.5 "entry to Starting").
func (ws *WatchStream) Start() {
	assertf(ws.state == WatchNotStarted || ws.state == WatchStopped, "WatchStream.Start called in state %s", ws.state)
	ws.cancelRestart()
	ws.state = WatchStarting
	ws.aggregator = NewWatchChangeAggregator(syncEngineLookup{ws.syncEngine})
	ws.onlineTracker.HandleWatchStreamStart()
	ws.handle = ws.datastore.CreateWatchStream(ws)
	ws.handle.Start()
}

// Stop is idempotent; it asks the transport handle to close, which will
// deliver exactly one OnWatchClose (OK status) if the stream was running,
// or none if it already was not.
func (ws *WatchStream) Stop() {
	ws.cancelRestart()
	if ws.state == WatchNotStarted || ws.state == WatchStopped {
		return
	}
	if ws.handle != nil {
		ws.handle.Stop()
	}
}

// MarkIdle asks the transport handle to close the stream, reported back as
// an OK-status interruption. No grace period is applied here
// (Config.IdleGrace is not consulted); when the close happens is up to the
// handle.
func (ws *WatchStream) MarkIdle() {
	if ws.handle != nil {
		ws.handle.MarkIdle()
	}
}

type syncEngineLookup struct{ syncEngine SyncEngine }

func (l syncEngineLookup) RemoteKeysForTarget(id TargetID) DocumentKeySet {
	if l.syncEngine == nil {
		return nil
	}
	return l.syncEngine.RemoteKeysForTarget(id)
}

// --- WatchStreamEvents: the transport calls these back on the worker ---

// OnWatchOpen resends every registered listen in stable registry order and
// records each as pending, per §4.5 "On Open."
func (ws *WatchStream) OnWatchOpen() {
	assertf(ws.state == WatchStarting, "OnWatchOpen in state %s", ws.state)
	ws.state = WatchOpen
	ws.retries = 0
	ws.backoff = ws.cfg.InitialBackoff

	for _, qd := range ws.registry.All() {
		ws.handle.SendWatchRequest(qd)
		ws.aggregator.RecordPendingTargetRequest(qd.TargetID)
	}
}

// OnWatchChange dispatches a tagged watch-frame variant without downcasting
// (design note #9), per §4.5 "On frame" / "On snapshot-carrying frame."
func (ws *WatchStream) OnWatchChange(change WatchChange) {
	ws.onlineTracker.UpdateState(OnlineStateOnline)

	switch {
	case change.TargetChange != nil:
		ws.handleTargetChange(*change.TargetChange)
	case change.DocumentChange != nil:
		ws.aggregator.HandleDocumentChange(*change.DocumentChange)
	case change.ExistenceFilter != nil:
		ws.aggregator.HandleExistenceFilter(*change.ExistenceFilter)
	}
}

func (ws *WatchStream) handleTargetChange(tc TargetChange) {
	if tc.Kind == TargetChangeRemoved && !tc.Cause.OK {
		ws.handleTargetError(tc)
		return
	}

	ws.aggregator.HandleTargetChange(tc)

	if tc.SnapshotVersion != SnapshotVersionNone && tc.SnapshotVersion >= ws.localStore.LastRemoteSnapshotVersion() {
		ws.deliverRemoteEvent(tc.SnapshotVersion)
	}
}

// handleTargetError is §4.2's "on target error": a TargetChange{Removed,
// cause != ok} that was not merely the expected response to an in-flight
// unwatch is a per-target error, surfaced as RejectListen. A pending
// request for a target that is no longer in the registry means we asked the
// server to stop watching it ourselves; the aggregator's pending-target
// bookkeeping lets us ignore that stale not-found signal instead of
// reporting a spurious error. A target still in the registry is rejected
// even if its watch request is pending (as every listen is right after
// OnWatchOpen).
func (ws *WatchStream) handleTargetError(tc TargetChange) {
	for _, id := range tc.TargetIDs {
		if ws.aggregator.IsPendingTargetRequest(id) && !ws.registry.Contains(id) {
			ws.aggregator.ClearPendingTargetRequest(id)
			ws.aggregator.RemoveTarget(id)
			continue
		}
		if ws.registry.Contains(id) {
			ws.registry.removeOnTargetError(id)
		}
		ws.aggregator.RemoveTarget(id)
		ws.syncEngine.RejectListen(id, targetRejectedError(tc.Cause))
	}
}

// deliverRemoteEvent builds a RemoteEvent at version, folds new resume
// tokens into the registry, runs existence-filter-mismatch recovery, then
// delivers it to the sync engine (§4.5 "On snapshot-carrying frame").
func (ws *WatchStream) deliverRemoteEvent(version SnapshotVersion) {
	event := ws.aggregator.CreateRemoteEvent(version)

	for id, state := range event.TargetChanges {
		ws.registry.UpdateFromRemoteEvent(id, state.SnapshotVersion, state.ResumeToken)
	}

	ws.recoverExistenceFilterMismatches(event.TargetMismatches)

	ws.syncEngine.ApplyRemoteEvent(event)
}

// recoverExistenceFilterMismatches implements §4.5's existence-filter-
// mismatch recovery: clear the resume token, unwatch, then re-watch with a
// transient ExistenceFilterMismatch-purpose QueryData that is never written
// back to the registry.
func (ws *WatchStream) recoverExistenceFilterMismatches(mismatches map[TargetID]struct{}) {
	for id := range mismatches {
		cleared, ok := ws.registry.ClearResumeTokenForExistenceFilterMismatch(id)
		if !ok {
			continue
		}
		ws.handle.SendUnwatchRequest(id)
		ws.aggregator.RemoveTarget(id)

		ws.handle.SendWatchRequest(cleared.transientForExistenceFilterMismatch())
		ws.aggregator.RecordPendingTargetRequest(id)
	}
}

// OnWatchClose handles §4.5 "On Interruption": drop the aggregator, and
// either re-enter Starting (behind backoff) if ShouldStart still holds, or
// settle to Unknown. A graceful (OK) close must only occur when ShouldStart
// no longer holds; violating that is a programming error.
func (ws *WatchStream) OnWatchClose(status Status) {
	ws.aggregator = nil
	ws.state = WatchStopped
	shouldRestart := ws.networkEnabled && !ws.registry.IsEmpty()

	if status.OK {
		assertf(!shouldRestart, "graceful watch close while ShouldStart still holds")
		return
	}

	ws.onlineTracker.HandleWatchStreamFailure(status)
	if shouldRestart {
		ws.scheduleRestart()
	} else {
		ws.onlineTracker.UpdateState(OnlineStateUnknown)
	}
}

func (ws *WatchStream) scheduleRestart() {
	jitter := 0.8 + rand.Float64()*0.4
	wait := time.Duration(float64(ws.backoff) * jitter)

	ws.retries++
	ws.backoff = time.Duration(float64(ws.backoff) * ws.cfg.BackoffMultiplier)
	if ws.backoff > ws.cfg.MaxBackoff {
		ws.backoff = ws.cfg.MaxBackoff
	}
	if ws.cfg.MaxRetries > 0 && ws.retries > ws.cfg.MaxRetries {
		ws.logger.Warn("watch stream giving up after max retries", "retries", ws.retries)
		return
	}

	ws.timer = time.AfterFunc(wait, func() {
		ws.enqueue(func() {
			ws.timer = nil
			if ws.ShouldStart() {
				ws.Start()
			}
		})
	})
}

func (ws *WatchStream) cancelRestart() {
	if ws.timer != nil {
		ws.timer.Stop()
		ws.timer = nil
	}
}
