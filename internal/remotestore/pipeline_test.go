package remotestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePipeline_CanAddRequiresNetworkEnabled(t *testing.T) {
	p := NewWritePipeline()
	assert.False(t, p.CanAdd())

	p.SetNetworkEnabled(true)
	assert.True(t, p.CanAdd())
}

func TestWritePipeline_EnqueuePanicsWhenNetworkDisabled(t *testing.T) {
	p := NewWritePipeline()
	assert.Panics(t, func() {
		p.Enqueue(MutationBatch{BatchID: 1})
	})
}

func TestWritePipeline_EnqueueRespectsCapacity(t *testing.T) {
	p := NewWritePipeline()
	p.SetNetworkEnabled(true)

	for i := 1; i <= MaxPendingWrites; i++ {
		p.Enqueue(MutationBatch{BatchID: BatchID(i)})
	}
	assert.False(t, p.CanAdd())
	assert.Panics(t, func() {
		p.Enqueue(MutationBatch{BatchID: BatchID(MaxPendingWrites + 1)})
	})
}

func TestWritePipeline_EnqueueRequiresStrictlyIncreasingBatchID(t *testing.T) {
	p := NewWritePipeline()
	p.SetNetworkEnabled(true)
	p.Enqueue(MutationBatch{BatchID: 5})

	assert.Panics(t, func() {
		p.Enqueue(MutationBatch{BatchID: 5})
	})
	assert.Panics(t, func() {
		p.Enqueue(MutationBatch{BatchID: 4})
	})
}

func TestWritePipeline_PeekAndPopFIFO(t *testing.T) {
	p := NewWritePipeline()
	p.SetNetworkEnabled(true)
	p.Enqueue(MutationBatch{BatchID: 1})
	p.Enqueue(MutationBatch{BatchID: 2})

	peeked, ok := p.PeekFirst()
	require.True(t, ok)
	assert.Equal(t, BatchID(1), peeked.BatchID)

	popped, ok := p.PopFirst()
	require.True(t, ok)
	assert.Equal(t, BatchID(1), popped.BatchID)
	assert.Equal(t, 1, p.Len())

	popped, ok = p.PopFirst()
	require.True(t, ok)
	assert.Equal(t, BatchID(2), popped.BatchID)
	assert.True(t, p.IsEmpty())

	_, ok = p.PopFirst()
	assert.False(t, ok)
}

func TestWritePipeline_Clear(t *testing.T) {
	p := NewWritePipeline()
	p.SetNetworkEnabled(true)
	p.Enqueue(MutationBatch{BatchID: 1})

	p.Clear()

	assert.True(t, p.IsEmpty())
	_, ok := p.LastBatchID()
	assert.False(t, ok)
}

func TestWritePipeline_AllReturnsCopyInOrder(t *testing.T) {
	p := NewWritePipeline()
	p.SetNetworkEnabled(true)
	p.Enqueue(MutationBatch{BatchID: 1})
	p.Enqueue(MutationBatch{BatchID: 2})

	all := p.All()
	require.Len(t, all, 2)
	all[0].BatchID = 999

	peeked, _ := p.PeekFirst()
	assert.Equal(t, BatchID(1), peeked.BatchID)
}

func TestWritePipeline_LastBatchID(t *testing.T) {
	p := NewWritePipeline()
	p.SetNetworkEnabled(true)
	_, ok := p.LastBatchID()
	assert.False(t, ok)

	p.Enqueue(MutationBatch{BatchID: 1})
	p.Enqueue(MutationBatch{BatchID: 7})

	last, ok := p.LastBatchID()
	require.True(t, ok)
	assert.Equal(t, BatchID(7), last)
}
