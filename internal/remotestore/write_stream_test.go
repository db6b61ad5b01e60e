package remotestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriteStream(t *testing.T) (*WriteStream, *fakeDatastore, *WritePipeline, *fakeLocalStore, *fakeSyncEngine) {
	t.Helper()
	ds := newFakeDatastore()
	pipeline := NewWritePipeline()
	pipeline.SetNetworkEnabled(true)
	local := &fakeLocalStore{}
	sync := newFakeSyncEngine()
	refills := 0
	ws := NewWriteStream(discardLogger(), DefaultConfig(), ds, pipeline, local, sync, func() { refills++ }, syncEnqueue)
	ws.SetNetworkEnabled(true)
	return ws, ds, pipeline, local, sync
}

func TestWriteStream_HandshakeUsesPersistedToken(t *testing.T) {
	ws, ds, pipeline, local, _ := newTestWriteStream(t)
	local.lastStreamToken = []byte("persisted")
	pipeline.Enqueue(MutationBatch{BatchID: 1})

	ws.Start()
	ws.OnWriteOpen()

	assert.Equal(t, []byte("persisted"), ds.writeHandle.handshakeToken)
	assert.Equal(t, WriteHandshaking, ws.State())
}

func TestWriteStream_HandshakeCompleteResendsPipeline(t *testing.T) {
	ws, ds, pipeline, local, _ := newTestWriteStream(t)
	pipeline.Enqueue(MutationBatch{BatchID: 1})
	pipeline.Enqueue(MutationBatch{BatchID: 2})
	ws.Start()
	ws.OnWriteOpen()
	ds.writeHandle.streamToken = []byte("server-assigned")

	ws.OnHandshakeComplete()

	assert.Equal(t, WriteReady, ws.State())
	assert.True(t, ws.HandshakeComplete())
	assert.Equal(t, []byte("server-assigned"), local.lastStreamToken)
	require.Len(t, ds.writeHandle.sentBatches, 2)
	assert.Equal(t, BatchID(1), ds.writeHandle.sentBatches[0].BatchID)
	assert.Equal(t, BatchID(2), ds.writeHandle.sentBatches[1].BatchID)
}

func TestWriteStream_OnMutationResultPopsHeadAndApplies(t *testing.T) {
	ws, ds, pipeline, _, sync := newTestWriteStream(t)
	pipeline.Enqueue(MutationBatch{BatchID: 1})
	pipeline.Enqueue(MutationBatch{BatchID: 2})
	ws.Start()
	ws.OnWriteOpen()
	ws.OnHandshakeComplete()
	_ = ds

	ws.OnMutationResult(SnapshotVersion(9), []MutationResult{{DocumentKey: "doc/1"}})

	require.Len(t, sync.writes, 1)
	assert.Equal(t, BatchID(1), sync.writes[0].Batch.BatchID)
	assert.Equal(t, SnapshotVersion(9), sync.writes[0].CommitVersion)
	assert.Equal(t, 1, pipeline.Len())
}

func TestWriteStream_PermanentWriteErrorRejectsAndInhibitsBackoff(t *testing.T) {
	ws, ds, pipeline, _, sync := newTestWriteStream(t)
	ds.permanentWriteErrorCodes["invalid-argument"] = true
	pipeline.Enqueue(MutationBatch{BatchID: 1})
	ws.Start()
	ws.OnWriteOpen()
	ws.OnHandshakeComplete()

	ws.OnWriteClose(Status{OK: false, Code: "invalid-argument"})

	require.Contains(t, sync.rejectedWrites, BatchID(1))
	assert.True(t, ws.inhibitNextBackoff)
}

func TestWriteStream_TransientWriteErrorLeavesPipelineIntact(t *testing.T) {
	ws, ds, pipeline, _, sync := newTestWriteStream(t)
	ds.permanentWriteErrorCodes["invalid-argument"] = false
	pipeline.Enqueue(MutationBatch{BatchID: 1})
	ws.Start()
	ws.OnWriteOpen()
	ws.OnHandshakeComplete()

	ws.OnWriteClose(Status{OK: false, Code: "unavailable"})

	assert.Empty(t, sync.rejectedWrites)
	assert.Equal(t, 1, pipeline.Len())
	assert.False(t, ws.inhibitNextBackoff)
	ws.cancelRestart()
}

func TestWriteStream_PermanentHandshakeErrorClearsStreamToken(t *testing.T) {
	ws, _, pipeline, local, _ := newTestWriteStream(t)
	local.lastStreamToken = []byte("stale")
	pipeline.Enqueue(MutationBatch{BatchID: 1})
	ws.datastore.(*fakeDatastore).permanentErrorCodes["permission-denied"] = true
	ws.Start()
	ws.OnWriteOpen()

	ws.OnWriteClose(Status{OK: false, Code: "permission-denied"})

	assert.Nil(t, local.lastStreamToken)
	ws.cancelRestart()
}

func TestWriteStream_InhibitBackoffSkipsDelayOnRestart(t *testing.T) {
	ws, _, pipeline, _, _ := newTestWriteStream(t)
	pipeline.Enqueue(MutationBatch{BatchID: 1})
	ws.InhibitBackoff()

	ws.scheduleRestart()

	assert.Nil(t, ws.timer)
	assert.False(t, ws.inhibitNextBackoff)
}

func TestWriteStream_ShouldStart(t *testing.T) {
	ws, _, pipeline, _, _ := newTestWriteStream(t)
	assert.False(t, ws.ShouldStart())

	pipeline.Enqueue(MutationBatch{BatchID: 1})
	assert.True(t, ws.ShouldStart())

	ws.Start()
	assert.False(t, ws.ShouldStart())
}
