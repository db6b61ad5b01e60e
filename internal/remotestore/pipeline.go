package remotestore

import "fmt"

// MaxPendingWrites is the bounded capacity (K) of the WritePipeline.
const MaxPendingWrites = 10

// WritePipeline is a bounded FIFO of mutation batches in flight to the
// backend. Like ListenTargetRegistry, it is mutated only on the RemoteStore
// worker and carries no internal locking.
type WritePipeline struct {
	batches        []MutationBatch
	networkEnabled bool
}

// NewWritePipeline returns an empty pipeline.
func NewWritePipeline() *WritePipeline {
	return &WritePipeline{}
}

// SetNetworkEnabled updates the flag CanAdd consults.
func (p *WritePipeline) SetNetworkEnabled(enabled bool) {
	p.networkEnabled = enabled
}

// CanAdd reports whether Enqueue may be called: network enabled and the
// pipeline has spare capacity.
func (p *WritePipeline) CanAdd() bool {
	return p.networkEnabled && len(p.batches) < MaxPendingWrites
}

// Enqueue appends batch. The caller must have checked CanAdd(); it is a
// programming error to violate capacity or BatchID ordering.
func (p *WritePipeline) Enqueue(batch MutationBatch) {
	if !p.networkEnabled {
		panic("remotestore: Enqueue called while network disabled")
	}
	if len(p.batches) >= MaxPendingWrites {
		panic(fmt.Sprintf("remotestore: write pipeline exceeded capacity %d", MaxPendingWrites))
	}
	if len(p.batches) > 0 {
		last := p.batches[len(p.batches)-1]
		if batch.BatchID <= last.BatchID {
			panic(fmt.Sprintf("remotestore: BatchID %d does not strictly increase after %d", batch.BatchID, last.BatchID))
		}
	}
	p.batches = append(p.batches, batch)
}

// PeekFirst returns the head-of-pipeline batch without removing it, used for
// ack correlation.
func (p *WritePipeline) PeekFirst() (MutationBatch, bool) {
	if len(p.batches) == 0 {
		return MutationBatch{}, false
	}
	return p.batches[0], true
}

// PopFirst removes and returns the head-of-pipeline batch.
func (p *WritePipeline) PopFirst() (MutationBatch, bool) {
	if len(p.batches) == 0 {
		return MutationBatch{}, false
	}
	batch := p.batches[0]
	p.batches = p.batches[1:]
	return batch, true
}

// Clear empties the pipeline, called on network disable. Mutations remain
// durable in the local store and will be re-fetched.
func (p *WritePipeline) Clear() {
	p.batches = nil
}

// Len returns the number of batches currently in flight.
func (p *WritePipeline) Len() int {
	return len(p.batches)
}

// IsEmpty reports whether the pipeline has no batches in flight.
func (p *WritePipeline) IsEmpty() bool {
	return len(p.batches) == 0
}

// LastBatchID returns the BatchID of the tail-of-pipeline batch, used by
// FillWritePipeline to ask the local store for the next batch after it.
// Returns false if the pipeline is empty.
func (p *WritePipeline) LastBatchID() (BatchID, bool) {
	if len(p.batches) == 0 {
		return 0, false
	}
	return p.batches[len(p.batches)-1].BatchID, true
}

// All returns every batch currently in the pipeline, in send order, used to
// re-transmit unacked batches after a handshake completes.
func (p *WritePipeline) All() []MutationBatch {
	result := make([]MutationBatch, len(p.batches))
	copy(result, p.batches)
	return result
}
