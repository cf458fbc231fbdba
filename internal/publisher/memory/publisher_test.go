package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishRecordsMessages(t *testing.T) {
	t.Parallel()

	p := New()
	ctx := context.Background()

	id, err := p.Publish(ctx, "catalog.runs", map[string]int{"products": 3})
	require.NoError(t, err)
	assert.Equal(t, "mem-1", id)

	id, err = p.Publish(ctx, "catalog.runs", map[string]int{"products": 5})
	require.NoError(t, err)
	assert.Equal(t, "mem-2", id)

	msgs := p.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "catalog.runs", msgs[0].Topic)
	assert.Equal(t, map[string]int{"products": 3}, msgs[0].Payload)
}

func TestMessagesReturnsCopy(t *testing.T) {
	t.Parallel()

	p := New()
	_, err := p.Publish(context.Background(), "t", "payload")
	require.NoError(t, err)

	msgs := p.Messages()
	msgs[0].Topic = "mutated"
	assert.Equal(t, "t", p.Messages()[0].Topic)
}
