package wsdatastore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession() *session {
	return &session{
		server: &Server{logger: discardLogger()},
		send:   make(chan Envelope, 8),
	}
}

func TestSession_WatchRequestSendsAddedThenNoChange(t *testing.T) {
	sess := newTestSession()
	sess.handle(Envelope{Type: typeWatchRequest, Payload: mustMarshal(queryDataPayload{TargetID: 1, Collection: "demo"})})

	added := <-sess.send
	assert.Equal(t, typeTargetChange, added.Type)
	var addedPayload targetChangePayload
	require.NoError(t, json.Unmarshal(added.Payload, &addedPayload))
	assert.Equal(t, []int32{1}, addedPayload.TargetIDs)

	noChange := <-sess.send
	var noChangePayload targetChangePayload
	require.NoError(t, json.Unmarshal(noChange.Payload, &noChangePayload))
	assert.Greater(t, noChangePayload.SnapshotVersion, int64(0))
}

func TestSession_WriteHandshakeSendsAck(t *testing.T) {
	sess := newTestSession()
	sess.handle(Envelope{Type: typeWriteHandshake, Payload: mustMarshal(writeHandshakePayload{})})

	env := <-sess.send
	assert.Equal(t, typeHandshakeAck, env.Type)
	var ack handshakeAckPayload
	require.NoError(t, json.Unmarshal(env.Payload, &ack))
	assert.NotEmpty(t, ack.StreamToken)
}

func TestSession_WriteMutationsSendsResultPerMutation(t *testing.T) {
	sess := newTestSession()
	sess.handle(Envelope{Type: typeWriteMutations, Payload: mustMarshal(writeMutationsPayload{
		BatchID: 1,
		Mutations: []mutationPayload{
			{DocumentKey: "demo/1", Kind: "set"},
			{DocumentKey: "demo/2", Kind: "set"},
		},
	})})

	env := <-sess.send
	assert.Equal(t, typeMutationResult, env.Type)
	var result mutationResultPayload
	require.NoError(t, json.Unmarshal(env.Payload, &result))
	require.Len(t, result.Results, 2)
	assert.Equal(t, "demo/1", result.Results[0].DocumentKey)
	assert.Equal(t, "demo/2", result.Results[1].DocumentKey)
}

func TestSession_SetModeKeepsFirstMode(t *testing.T) {
	sess := newTestSession()
	sess.setMode(modeWatch)
	sess.setMode(modeWrite)
	assert.Equal(t, modeWatch, sess.mode)
}

func TestSession_UnwatchRequestIsSilent(t *testing.T) {
	sess := newTestSession()
	sess.handle(Envelope{Type: typeUnwatchRequest, Payload: mustMarshal(unwatchPayload{TargetID: 1})})
	assert.Len(t, sess.send, 0)
}
