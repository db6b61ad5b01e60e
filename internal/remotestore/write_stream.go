package remotestore

import (
	"log/slog"
	"math/rand"
	"time"
)

// WriteStreamState is the write-stream state machine's current state
// (§4.6): NotStarted -> Starting -> Open -> Handshaking -> Ready ->
// Stopped. Handshaking begins on Open; Ready begins when the handshake
// response arrives.
type WriteStreamState int

const (
	WriteNotStarted WriteStreamState = iota
	WriteStarting
	WriteOpen
	WriteHandshaking
	WriteReady
	WriteStopped
)

func (s WriteStreamState) String() string {
	switch s {
	case WriteNotStarted:
		return "not-started"
	case WriteStarting:
		return "starting"
	case WriteOpen:
		return "open"
	case WriteHandshaking:
		return "handshaking"
	case WriteReady:
		return "ready"
	case WriteStopped:
		return "stopped"
	default:
		return "invalid"
	}
}

// WriteStream is the write-stream state machine (§4.6): handshake,
// mutation dispatch, response correlation, permanent-vs-transient error
// classification. Grounded end to end on the same teacher pattern as
// WatchStream (remoteStream's state/backoff/reconnect), with the
// handshake/ack-correlation half grounded on remoteStream's
// pendingSubscribes request/response correlation generalized to a
// head-of-pipeline response correlation.
type WriteStream struct {
	logger         *slog.Logger
	cfg            Config
	datastore      Datastore
	pipeline       *WritePipeline
	localStore     LocalStore
	syncEngine     SyncEngine
	fillPipeline   func()
	enqueue        func(func())

	state          WriteStreamState
	networkEnabled bool
	handle         WriteStreamHandle

	backoff            time.Duration
	retries            int
	timer              *time.Timer
	inhibitNextBackoff bool
}

// NewWriteStream constructs a write stream in state NotStarted. fillPipeline
// is called back after an ack or a permanent-write-error rejection, to top
// the pipeline back up (§4.6 "On MutationResponse"/§4.6.1).
func NewWriteStream(
	logger *slog.Logger,
	cfg Config,
	datastore Datastore,
	pipeline *WritePipeline,
	localStore LocalStore,
	syncEngine SyncEngine,
	fillPipeline func(),
	enqueue func(func()),
) *WriteStream {
	return &WriteStream{
		logger:       logger.With("stream", "write"),
		cfg:          cfg,
		datastore:    datastore,
		pipeline:     pipeline,
		localStore:   localStore,
		syncEngine:   syncEngine,
		fillPipeline: fillPipeline,
		enqueue:      enqueue,
		state:        WriteNotStarted,
		backoff:      cfg.InitialBackoff,
	}
}

// State returns the current state, mostly for tests and diagnostics.
func (ws *WriteStream) State() WriteStreamState { return ws.state }

// IsStarted reports whether the stream is anywhere between Starting and
// Ready (inclusive).
func (ws *WriteStream) IsStarted() bool {
	switch ws.state {
	case WriteStarting, WriteOpen, WriteHandshaking, WriteReady:
		return true
	default:
		return false
	}
}

// IsOpen reports whether the underlying connection is up, regardless of
// handshake progress.
func (ws *WriteStream) IsOpen() bool {
	switch ws.state {
	case WriteOpen, WriteHandshaking, WriteReady:
		return true
	default:
		return false
	}
}

// HandshakeComplete reports whether the stream is ready to accept mutation
// dispatch and ack correlation.
func (ws *WriteStream) HandshakeComplete() bool { return ws.state == WriteReady }

// SetNetworkEnabled mirrors the coordinator's NetworkEnabled flag.
func (ws *WriteStream) SetNetworkEnabled(enabled bool) { ws.networkEnabled = enabled }

// ShouldStart is NetworkEnabled && !Started && pipeline non-empty (§4.6).
func (ws *WriteStream) ShouldStart() bool {
	return ws.networkEnabled && !ws.IsStarted() && !ws.pipeline.IsEmpty()
}

// Start enters Starting.
func (ws *WriteStream) Start() {
	assertf(ws.state == WriteNotStarted || ws.state == WriteStopped, "WriteStream.Start called in state %s", ws.state)
	ws.cancelRestart()
	ws.state = WriteStarting
	ws.handle = ws.datastore.CreateWriteStream(ws)
	ws.handle.Start()
}

// Stop is idempotent; see WatchStream.Stop.
func (ws *WriteStream) Stop() {
	ws.cancelRestart()
	if ws.state == WriteNotStarted || ws.state == WriteStopped {
		return
	}
	if ws.handle != nil {
		ws.handle.Stop()
	}
}

// MarkIdle asks the transport handle to close the stream. No grace period is
// applied here (Config.IdleGrace is not consulted).
func (ws *WriteStream) MarkIdle() {
	if ws.handle != nil {
		ws.handle.MarkIdle()
	}
}

// InhibitBackoff skips the next restart's exponential delay, used by the
// permanent-write-error path (§4.6.1): the pipeline tail is presumed
// healthy, so there is no reason to wait before re-sending it.
func (ws *WriteStream) InhibitBackoff() { ws.inhibitNextBackoff = true }

// GetLastStreamToken reads the token cached by the transport handle during
// this session (design note: the Remote Store merely caches the local
// store's persisted token inside the write stream during a session).
func (ws *WriteStream) GetLastStreamToken() []byte {
	if ws.handle == nil {
		return nil
	}
	return ws.handle.GetLastStreamToken()
}

// --- WriteStreamEvents: the transport calls these back on the worker ---

// OnWriteOpen sends the handshake carrying the persisted LastStreamToken
// (§4.6 "On Open").
func (ws *WriteStream) OnWriteOpen() {
	assertf(ws.state == WriteStarting, "OnWriteOpen in state %s", ws.state)
	ws.state = WriteHandshaking
	ws.retries = 0
	ws.backoff = ws.cfg.InitialBackoff
	ws.handle.WriteHandshake(ws.localStore.LastStreamToken())
}

// OnHandshakeComplete persists the returned stream token and re-transmits
// every pipelined batch in order, since they are still unacked (§4.6 "On
// HandshakeComplete").
func (ws *WriteStream) OnHandshakeComplete() {
	assertf(ws.state == WriteHandshaking, "OnHandshakeComplete in state %s", ws.state)
	ws.state = WriteReady

	ws.localStore.SetLastStreamToken(ws.handle.GetLastStreamToken())

	for _, batch := range ws.pipeline.All() {
		ws.handle.WriteMutations(batch)
	}
}

// OnMutationResult pops the head-of-pipeline batch, delivers
// ApplySuccessfulWrite, and tops the pipeline back up (§4.6 "On
// MutationResponse").
func (ws *WriteStream) OnMutationResult(commitVersion SnapshotVersion, results []MutationResult) {
	assertf(ws.state == WriteReady, "OnMutationResult in state %s", ws.state)

	batch, ok := ws.pipeline.PopFirst()
	assertf(ok, "OnMutationResult with an empty write pipeline")

	ws.syncEngine.ApplySuccessfulWrite(WriteResult{
		Batch:         batch,
		CommitVersion: commitVersion,
		Results:       results,
		StreamToken:   ws.handle.GetLastStreamToken(),
	})

	ws.fillPipeline()
}

// OnWriteClose handles §4.6 "On Interruption": a graceful close must only
// occur when ShouldStart no longer holds; otherwise it classifies the
// error per §4.6.1 before deciding whether to restart.
func (ws *WriteStream) OnWriteClose(status Status) {
	wasHandshakeComplete := ws.state == WriteReady
	ws.state = WriteStopped

	if status.OK {
		assertf(!(ws.networkEnabled && !ws.pipeline.IsEmpty()), "graceful write close while ShouldStart still holds")
		return
	}

	switch {
	case !ws.pipeline.IsEmpty() && wasHandshakeComplete:
		ws.classifyWriteError(status)
	case !ws.pipeline.IsEmpty() && !wasHandshakeComplete:
		ws.classifyHandshakeError(status)
	}

	if ws.networkEnabled && !ws.pipeline.IsEmpty() {
		ws.scheduleRestart()
	}
}

// classifyWriteError implements §4.6.1's write-error rows.
func (ws *WriteStream) classifyWriteError(status Status) {
	if !ws.datastore.IsPermanentWriteError(status) {
		// Transient: leave the pipeline intact, exponential backoff
		// applies on restart.
		return
	}
	batch, ok := ws.pipeline.PopFirst()
	if ok {
		ws.syncEngine.RejectFailedWrite(batch.BatchID, writeRejectedError(status))
	}
	ws.InhibitBackoff()
	ws.fillPipeline()
}

// classifyHandshakeError implements §4.6.1's handshake-error rows.
func (ws *WriteStream) classifyHandshakeError(status Status) {
	if !ws.datastore.IsPermanentError(status) {
		// Transient: do nothing, exponential backoff applies on restart.
		return
	}
	// Permanent: clear the stored stream token in the local store (§9 open
	// question: clearing the token and still restarting is intentional —
	// the cleared token causes the next handshake to be treated as fresh).
	// The old transport handle's copy is left as is; the next Start creates
	// a new handle, and OnWriteOpen handshakes with the local store's
	// now-empty token.
	ws.localStore.SetLastStreamToken(nil)
}

func (ws *WriteStream) scheduleRestart() {
	if ws.inhibitNextBackoff {
		ws.inhibitNextBackoff = false
		ws.enqueue(func() {
			if ws.ShouldStart() {
				ws.Start()
			}
		})
		return
	}

	jitter := 0.8 + rand.Float64()*0.4
	wait := time.Duration(float64(ws.backoff) * jitter)

	ws.retries++
	ws.backoff = time.Duration(float64(ws.backoff) * ws.cfg.BackoffMultiplier)
	if ws.backoff > ws.cfg.MaxBackoff {
		ws.backoff = ws.cfg.MaxBackoff
	}
	if ws.cfg.MaxRetries > 0 && ws.retries > ws.cfg.MaxRetries {
		ws.logger.Warn("write stream giving up after max retries", "retries", ws.retries)
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

func (ws *WriteStream) cancelRestart() {
	if ws.timer != nil {
		ws.timer.Stop()
		ws.timer = nil
	}
}
