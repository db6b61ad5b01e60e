package wsdatastore

import "encoding/json"

// Envelope is the tagged-JSON wire frame both streams speak, generalizing
// the teacher's BaseMessage{Type, ID, Payload} shape (internal/realtime)
// from a single subscription multiplexed over one connection to two
// dedicated duplex connections (Watch, Write). Dispatch is always on Type;
// nothing here is ever downcast.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	typeWatchRequest   = "watch_request"
	typeUnwatchRequest  = "unwatch_request"
	typeWatchOpen       = "watch_open"
	typeTargetChange    = "target_change"
	typeDocumentChange  = "document_change"
	typeExistenceFilter = "existence_filter"
	typeWatchClose      = "watch_close"

	typeWriteHandshake = "write_handshake"
	typeHandshakeAck   = "handshake_ack"
	typeWriteMutations = "write_mutations"
	typeMutationResult = "mutation_result"
	typeWriteClose     = "write_close"
)

type queryDataPayload struct {
	TargetID        int32  `json:"target_id"`
	Collection      string `json:"collection"`
	Filters         []filterPayload `json:"filters,omitempty"`
	SnapshotVersion int64  `json:"snapshot_version"`
	ResumeToken     []byte `json:"resume_token,omitempty"`
	SequenceNumber  int64  `json:"sequence_number"`
	Purpose         int    `json:"purpose"`
}

type filterPayload struct {
	Field string      `json:"field"`
	Op    string      `json:"op"`
	Value interface{} `json:"value"`
}

type unwatchPayload struct {
	TargetID int32 `json:"target_id"`
}

type targetChangePayload struct {
	Kind            int     `json:"kind"`
	TargetIDs       []int32 `json:"target_ids"`
	CauseOK         bool    `json:"cause_ok"`
	CauseCode       string  `json:"cause_code,omitempty"`
	ResumeToken     []byte  `json:"resume_token,omitempty"`
	SnapshotVersion int64   `json:"snapshot_version"`
}

type documentChangePayload struct {
	DocumentKey    string                 `json:"document_key"`
	Document       map[string]interface{} `json:"document,omitempty"`
	Deleted        bool                   `json:"deleted"`
	UpdatedTargets []int32                `json:"updated_targets,omitempty"`
	RemovedTargets []int32                `json:"removed_targets,omitempty"`
}

type existenceFilterPayload struct {
	TargetID int32 `json:"target_id"`
	Count    int   `json:"count"`
}

type closePayload struct {
	OK   bool   `json:"ok"`
	Code string `json:"code,omitempty"`
}

type writeHandshakePayload struct {
	LastStreamToken []byte `json:"last_stream_token,omitempty"`
}

type handshakeAckPayload struct {
	StreamToken []byte `json:"stream_token"`
}

type mutationPayload struct {
	DocumentKey string                 `json:"document_key"`
	Kind        string                 `json:"kind"`
	Fields      map[string]interface{} `json:"fields,omitempty"`
}

type writeMutationsPayload struct {
	BatchID   int64             `json:"batch_id"`
	Mutations []mutationPayload `json:"mutations"`
}

type mutationResultPayload struct {
	CommitVersion int64                  `json:"commit_version"`
	Results       []mutationResultEntry  `json:"results"`
}

type mutationResultEntry struct {
	DocumentKey string `json:"document_key"`
	Version     int64  `json:"version"`
}

func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic("wsdatastore: marshal: " + err.Error())
	}
	return b
}
