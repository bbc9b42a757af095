package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryProduceAssignsOffsets(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Produce(ctx,
		Record{Topic: "t", Key: []byte("k"), Value: []byte("a")},
		Record{Topic: "t", Key: []byte("k"), Value: []byte("b")},
	))
	require.NoError(t, m.Produce(ctx, Record{Topic: "t", Key: []byte("k"), Value: []byte("c")}))

	records := m.Records("t")
	require.Len(t, records, 3)
	for i, want := range []string{"a", "b", "c"} {
		assert.Equal(t, int64(i), records[i].Offset)
		assert.Equal(t, want, string(records[i].Value))
	}
}

func TestMemoryConsumerOrderAndCommit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Produce(ctx,
		Record{Topic: "t", Value: []byte("a")},
		Record{Topic: "t", Value: []byte("b")},
	))

	c := m.Consumer("g1", "t")
	first, err := c.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", string(first.Value))
	require.NoError(t, c.Commit(ctx, first))

	second, err := c.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", string(second.Value))
	// Not committed: a fresh consumer of the same group resumes at "b".
	require.NoError(t, c.Close())

	resumed := m.Consumer("g1", "t")
	rec, err := resumed.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", string(rec.Value))
}

func TestMemoryConsumerGroupsAreIndependent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Produce(ctx, Record{Topic: "t", Value: []byte("a")}))

	c1 := m.Consumer("g1", "t")
	c2 := m.Consumer("g2", "t")

	r1, err := c1.Fetch(ctx)
	require.NoError(t, err)
	r2, err := c2.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(r1.Value), string(r2.Value))
}

func TestMemoryFetchBlocksUntilProduce(t *testing.T) {
	m := NewMemory()
	c := m.Consumer("g", "t")

	got := make(chan Record, 1)
	go func() {
		rec, err := c.Fetch(context.Background())
		if err == nil {
			got <- rec
		}
	}()

	select {
	case <-got:
		t.Fatal("fetch returned before produce")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, m.Produce(context.Background(), Record{Topic: "t", Value: []byte("x")}))

	select {
	case rec := <-got:
		assert.Equal(t, "x", string(rec.Value))
	case <-time.After(time.Second):
		t.Fatal("fetch did not observe produce")
	}
}

func TestMemoryFetchRespectsContext(t *testing.T) {
	m := NewMemory()
	c := m.Consumer("g", "t")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Fetch(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRecordHeaders(t *testing.T) {
	rec := Record{Headers: StandardHeaders("acme", "api", 2)}

	assert.Equal(t, "acme", rec.Header(HeaderTenantID))
	assert.Equal(t, "api", rec.Header(HeaderProducer))
	assert.Equal(t, 2, rec.RetryCount())
	assert.Equal(t, "", rec.Header("missing"))

	var empty Record
	assert.Zero(t, empty.RetryCount())
}
