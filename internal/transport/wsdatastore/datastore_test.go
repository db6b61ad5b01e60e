package wsdatastore

import (
	"io"
	"log/slog"
	"testing"

	"github.com/relaydb/remotestore/internal/remotestore"
	"github.com/stretchr/testify/assert"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDatastore_IsPermanentErrorClassification(t *testing.T) {
	ds := New(discardLogger(), "ws://example.invalid", nil, []string{"permission-denied"}, []string{"invalid-argument"})

	assert.True(t, ds.IsPermanentError(remotestore.Status{Code: "permission-denied"}))
	assert.False(t, ds.IsPermanentError(remotestore.Status{Code: "unavailable"}))
	assert.True(t, ds.IsPermanentWriteError(remotestore.Status{Code: "invalid-argument"}))
	assert.False(t, ds.IsPermanentWriteError(remotestore.Status{Code: "unavailable"}))
}

func TestDatastore_NewTransactionUnsupported(t *testing.T) {
	ds := New(discardLogger(), "ws://example.invalid", nil, nil, nil)
	_, err := ds.NewTransaction(nil)
	assert.Error(t, err)
}

func TestCloseStatus(t *testing.T) {
	assert.True(t, closeStatus("").OK)
	assert.False(t, closeStatus("unavailable").OK)
	assert.Equal(t, "unavailable", closeStatus("unavailable").Code)
}

func TestTargetChangeFromPayload(t *testing.T) {
	tc := targetChangeFromPayload(targetChangePayload{
		Kind:            1,
		TargetIDs:       []int32{1, 2},
		CauseOK:         false,
		CauseCode:       "not-found",
		SnapshotVersion: 0,
	})

	assert.Equal(t, remotestore.TargetChangeRemoved, tc.Kind)
	assert.Equal(t, []remotestore.TargetID{1, 2}, tc.TargetIDs)
	assert.False(t, tc.Cause.OK)
	assert.Equal(t, remotestore.SnapshotVersionNone, tc.SnapshotVersion)
}

func TestTargetChangeFromPayload_PreservesNonZeroSnapshotVersion(t *testing.T) {
	tc := targetChangeFromPayload(targetChangePayload{SnapshotVersion: 42})
	assert.Equal(t, remotestore.SnapshotVersion(42), tc.SnapshotVersion)
}

func TestDocumentChangeFromPayload(t *testing.T) {
	dc := documentChangeFromPayload(documentChangePayload{
		DocumentKey:    "doc/1",
		Document:       map[string]interface{}{"a": 1},
		UpdatedTargets: []int32{1},
		RemovedTargets: []int32{2},
	})

	assert.Equal(t, "doc/1", dc.DocumentKey)
	assert.Equal(t, []remotestore.TargetID{1}, dc.UpdatedTargets)
	assert.Equal(t, []remotestore.TargetID{2}, dc.RemovedTargets)
}
