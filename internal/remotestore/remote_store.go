package remotestore

import (
	"context"
	"log/slog"
)

// RemoteStore is the top-level coordinator (§4.7): it owns the
// ListenTargetRegistry, WritePipeline, OnlineStateTracker and both stream
// state machines, and serializes every public method and every transport
// callback through a single worker goroutine so none of its collaborators
// need internal locking. Grounded on internal/streamer/service.go's
// Start/Stop lifecycle, re-expressed around one chan-func() worker instead
// of the teacher's per-callback sync.RWMutex.
type RemoteStore struct {
	logger     *slog.Logger
	cfg        Config
	datastore  Datastore
	localStore LocalStore
	syncEngine SyncEngine

	worker   *worker
	registry *ListenTargetRegistry
	pipeline *WritePipeline
	online   *OnlineStateTracker
	watch    *WatchStream
	write    *WriteStream

	networkEnabled bool
	started        bool
}

// New constructs a RemoteStore in the not-started state. Nothing runs until
// Start is called.
func New(logger *slog.Logger, cfg Config, datastore Datastore, localStore LocalStore, syncEngine SyncEngine) *RemoteStore {
	cfg.ApplyDefaults()

	rs := &RemoteStore{
		logger:         logger,
		cfg:            cfg,
		datastore:      datastore,
		localStore:     localStore,
		syncEngine:     syncEngine,
		registry:       NewListenTargetRegistry(),
		pipeline:       NewWritePipeline(),
		networkEnabled: true,
	}

	rs.online = NewOnlineStateTracker(logger, rs.enqueue, func(state OnlineState) {
		rs.syncEngine.HandleOnlineStateChange(state)
	})
	rs.watch = NewWatchStream(logger, cfg, datastore, rs.registry, rs.online, localStore, syncEngine, rs.enqueue)
	rs.write = NewWriteStream(logger, cfg, datastore, rs.pipeline, localStore, syncEngine, rs.fillWritePipelineLocked, rs.enqueue)

	return rs
}

// Enqueue posts fn onto the RemoteStore's single worker. The concrete
// Datastore transport must call through this (never invoke a
// WatchStreamEvents/WriteStreamEvents method inline from its own read loop)
// so every stream callback runs serialized with the rest of the Remote
// Store's state, per the single-threaded-cooperative model (§5).
func (rs *RemoteStore) Enqueue(fn func()) {
	rs.enqueue(fn)
}

// enqueue posts fn onto the worker, or drops it if the worker has not been
// started yet (guards timer callbacks racing Start/Shutdown).
func (rs *RemoteStore) enqueue(fn func()) {
	if rs.worker == nil {
		return
	}
	rs.worker.enqueue(fn)
}

// Start boots the single worker goroutine, starts the datastore transport
// and starts each stream that already has work: the watch stream if any
// targets are registered, the write stream if any writes are pipelined.
// Per §4.7, this is an idempotent no-op if already started.
func (rs *RemoteStore) Start(ctx context.Context) error {
	if rs.started {
		return nil
	}
	rs.worker = newWorker()
	rs.started = true

	if err := rs.datastore.Start(ctx); err != nil {
		return err
	}

	runVoid(rs.worker, func() {
		rs.withFatalRecovery(func() {
			rs.applyNetworkEnabled()
		})
	})
	return nil
}

// Shutdown stops both streams, clears the in-memory write pipeline (the
// local store remains the durable record), sets OnlineState to Unknown
// (never Offline — there was no failure, the client just stopped asking),
// shuts down the datastore transport, and stops the worker. After
// Shutdown, every other method is a no-op / ErrNotRunning.
func (rs *RemoteStore) Shutdown(ctx context.Context) error {
	if !rs.started {
		return nil
	}
	runVoid(rs.worker, func() {
		rs.withFatalRecovery(func() {
			rs.watch.Stop()
			rs.write.Stop()
			rs.pipeline.Clear()
			rs.online.UpdateState(OnlineStateUnknown)
		})
	})
	rs.worker.stop()
	rs.started = false
	return rs.datastore.Shutdown(ctx)
}

// EnableNetwork and DisableNetwork implement §4.7's network-toggle
// behavior: disabling clears the write pipeline (mutations remain durable
// in the local store) and stops both streams; enabling restarts whichever
// streams ShouldStart now holds for.
func (rs *RemoteStore) EnableNetwork() {
	if rs.worker == nil {
		return
	}
	runVoid(rs.worker, func() {
		rs.withFatalRecovery(func() {
			rs.networkEnabled = true
			rs.applyNetworkEnabled()
		})
	})
}

func (rs *RemoteStore) DisableNetwork() {
	if rs.worker == nil {
		return
	}
	runVoid(rs.worker, func() {
		rs.withFatalRecovery(func() {
			rs.networkEnabled = false
			rs.applyNetworkEnabled()
		})
	})
}

func (rs *RemoteStore) applyNetworkEnabled() {
	rs.pipeline.SetNetworkEnabled(rs.networkEnabled)
	rs.watch.SetNetworkEnabled(rs.networkEnabled)
	rs.write.SetNetworkEnabled(rs.networkEnabled)

	if !rs.networkEnabled {
		rs.watch.Stop()
		rs.write.Stop()
		rs.pipeline.Clear()
		rs.online.UpdateState(OnlineStateUnknown)
		return
	}

	if rs.watch.ShouldStart() {
		rs.watch.Start()
	}
	if rs.write.ShouldStart() {
		rs.write.Start()
	}
}

// CredentialDidChange implements the credential-rotation protocol: a user
// switch restarts the network outright, mirroring Firestore's
// restartNetwork. Disabling clears the pipeline and drops OnlineState to
// Unknown; re-enabling (if the network was on) starts both streams fresh,
// which refills the write pipeline from the new user's local store via
// fillWritePipelineLocked and re-sends every listen target from scratch, so
// nothing of the previous user's session survives the switch. token is the
// newly rotated credential, logged here (never verified — that is the
// datastore transport's job) purely for rotation observability.
func (rs *RemoteStore) CredentialDidChange(token string) {
	if rs.worker == nil {
		return
	}
	runVoid(rs.worker, func() {
		rs.withFatalRecovery(func() {
			DescribeToken(rs.logger, token)

			wasEnabled := rs.networkEnabled
			rs.networkEnabled = false
			rs.applyNetworkEnabled()

			if wasEnabled {
				rs.networkEnabled = true
				rs.applyNetworkEnabled()
				rs.fillWritePipelineLocked()
			}
		})
	})
}

// Listen validates qd.Query's filters by compiling them, then registers the
// target and starts the watch stream if it was not already running (§4.7
// invariant 3). A malformed query is rejected before it ever reaches the
// registry or the wire.
func (rs *RemoteStore) Listen(qd QueryData) error {
	if !rs.started {
		return ErrNotRunning
	}
	if err := ValidateFilters(qd.Query); err != nil {
		return err
	}
	runVoid(rs.worker, func() {
		rs.withFatalRecovery(func() {
			rs.registry.Listen(qd)
			if rs.watch.ShouldStart() {
				rs.watch.Start()
			}
		})
	})
	return nil
}

// Unlisten removes a target. If it was the last one, the watch stream is
// marked idle rather than stopped outright, matching the teacher's
// idle-grace pattern instead of tearing the connection down on every
// zero-target blip.
func (rs *RemoteStore) Unlisten(id TargetID) {
	if rs.worker == nil {
		return
	}
	runVoid(rs.worker, func() {
		rs.withFatalRecovery(func() {
			rs.registry.Unlisten(id)
			if rs.registry.IsEmpty() {
				rs.watch.MarkIdle()
			}
		})
	})
}

// FillWritePipeline implements §4.7: pulls mutation batches from the local
// store, in BatchID order, until the pipeline is full or the local store has
// nothing left, starting the write stream if needed.
func (rs *RemoteStore) FillWritePipeline() {
	if rs.worker == nil {
		return
	}
	runVoid(rs.worker, func() {
		rs.withFatalRecovery(func() {
			rs.fillWritePipelineLocked()
		})
	})
}

// fillWritePipelineLocked is the unexported body run on the worker, also
// used as the WriteStream's post-ack/post-rejection refill callback.
func (rs *RemoteStore) fillWritePipelineLocked() {
	lastID, hasLast := rs.pipeline.LastBatchID()
	if !hasLast {
		lastID = 0
	}
	for rs.pipeline.CanAdd() {
		batch, ok := rs.localStore.NextMutationBatchAfter(lastID)
		if !ok {
			break
		}
		rs.pipeline.Enqueue(batch)
		lastID = batch.BatchID
	}
	if rs.write.ShouldStart() {
		rs.write.Start()
		return
	}
	if rs.pipeline.IsEmpty() {
		rs.write.MarkIdle()
	}
}

// Transaction is a passthrough factory onto the datastore (§4.7
// Transaction()): the Remote Store holds no transaction state of its own.
func (rs *RemoteStore) Transaction(ctx context.Context) (Transaction, error) {
	if !rs.started {
		return nil, ErrNotRunning
	}
	return rs.datastore.NewTransaction(ctx)
}

// OnlineState reports the current connectivity signal, mostly for tests and
// diagnostics; production consumers should rely on
// SyncEngine.HandleOnlineStateChange instead of polling this.
func (rs *RemoteStore) OnlineState() OnlineState {
	if rs.worker == nil {
		return OnlineStateUnknown
	}
	return run(rs.worker, rs.online.State)
}

// withFatalRecovery recovers an assertf panic at the worker's top level
// (§7): an invariant violation is logged as fatal and re-panicked so the
// process crashes with a stack trace rather than silently corrupting state
// by continuing.
func (rs *RemoteStore) withFatalRecovery(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			rs.logger.Error("remote store invariant violated", "panic", r)
			panic(r)
		}
	}()
	fn()
}
