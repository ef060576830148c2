package message

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaynet-go/ramf/ramf"
)

func sourceOf(messages []CargoMessage) NextMessageFunc {
	idx := 0
	return func(ctx context.Context) (CargoMessage, bool, error) {
		if idx >= len(messages) {
			return CargoMessage{}, false, nil
		}
		msg := messages[idx]
		idx++
		return msg, true, nil
	}
}

func TestBatchMessagesSerialized_SingleBatchRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	messages := []CargoMessage{
		{Serialized: []byte("one"), ExpiryDate: now.Add(time.Hour)},
		{Serialized: []byte("two"), ExpiryDate: now.Add(2 * time.Hour)},
	}

	var batches []CargoMessageBatch
	err := BatchMessagesSerialized(context.Background(), sourceOf(messages), func(b CargoMessageBatch) error {
		batches = append(batches, b)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, now.Add(2*time.Hour), batches[0].ExpiryDate)

	decoded, err := DeserializeCargoMessageSet(batches[0].MessageSetSerialized)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, []byte("one"), decoded[0])
	assert.Equal(t, []byte("two"), decoded[1])
}

func TestBatchMessagesSerialized_FlushesBeforeExceedingLimit(t *testing.T) {
	now := time.Now().UTC()
	big1 := make([]byte, ramf.MaxSDUPlaintextLength-100)
	big2 := make([]byte, 200)
	messages := []CargoMessage{
		{Serialized: big1, ExpiryDate: now.Add(time.Hour)},
		{Serialized: big2, ExpiryDate: now.Add(2 * time.Hour)},
	}

	var batches []CargoMessageBatch
	err := BatchMessagesSerialized(context.Background(), sourceOf(messages), func(b CargoMessageBatch) error {
		batches = append(batches, b)
		assert.LessOrEqual(t, len(b.MessageSetSerialized), ramf.MaxSDUPlaintextLength)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, batches, 2)
}

func TestBatchMessagesSerialized_RejectsOverLongMessage(t *testing.T) {
	messages := []CargoMessage{
		{Serialized: make([]byte, ramf.MaxSDUPlaintextLength+1), ExpiryDate: time.Now().UTC()},
	}
	err := BatchMessagesSerialized(context.Background(), sourceOf(messages), func(CargoMessageBatch) error {
		return nil
	})
	require.Error(t, err)
}

func TestBatchMessagesSerialized_HonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	messages := []CargoMessage{{Serialized: []byte("x"), ExpiryDate: time.Now().UTC()}}
	err := BatchMessagesSerialized(ctx, sourceOf(messages), func(CargoMessageBatch) error {
		return nil
	})
	require.Error(t, err)
}

func TestBatchMessagesSerialized_EmptySourceYieldsNoBatch(t *testing.T) {
	var batches []CargoMessageBatch
	err := BatchMessagesSerialized(context.Background(), sourceOf(nil), func(b CargoMessageBatch) error {
		batches = append(batches, b)
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, batches)
}
