package registry

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/lineflow/message"
)

func newTestRegistry() *Registry {
	return New(slog.Default())
}

func TestUpsert_StableSurrogates(t *testing.T) {
	r := newTestRegistry()

	first := r.Upsert(message.EntityWorkOrder, "6107", nil)
	assert.True(t, first.Created)
	assert.True(t, first.Changed)

	again := r.Upsert(message.EntityWorkOrder, "6107", nil)
	assert.False(t, again.Created)
	assert.False(t, again.Changed)
	assert.Equal(t, first.Surrogate, again.Surrogate)

	other := r.Upsert(message.EntityWorkOrder, "6200", nil)
	assert.NotEqual(t, first.Surrogate, other.Surrogate)

	// Same natural key under a different kind is a different entity.
	lot := r.Upsert(message.EntityLot, "6107", nil)
	assert.NotEqual(t, first.Surrogate, lot.Surrogate)

	id, ok := r.Lookup(message.EntityWorkOrder, "6107")
	require.True(t, ok)
	assert.Equal(t, first.Surrogate, id)

	_, ok = r.Lookup(message.EntityWorkOrder, "9999")
	assert.False(t, ok)
}

func TestUpsert_AttributeMerge(t *testing.T) {
	r := newTestRegistry()

	r.Upsert(message.EntityProduct, "1204", map[string]any{"name": "Cola 500ml", "class": "beverage"})

	// Re-upserting identical attributes is a no-op.
	res := r.Upsert(message.EntityProduct, "1204", map[string]any{"name": "Cola 500ml"})
	assert.False(t, res.Changed)

	// A differing value wins.
	res = r.Upsert(message.EntityProduct, "1204", map[string]any{"name": "Cola 500ml Promo"})
	assert.True(t, res.Changed)
	assert.Equal(t, "Cola 500ml Promo", res.Attributes["name"])

	// An absent attribute never clears a known one.
	assert.Equal(t, "beverage", res.Attributes["class"])

	// A new attribute refines the entity.
	res = r.Upsert(message.EntityProduct, "1204", map[string]any{"bottle_size": "500ml"})
	assert.True(t, res.Changed)
	assert.Equal(t, "500ml", res.Attributes["bottle_size"])
}

func TestUpsert_ConcurrentSameKey(t *testing.T) {
	r := newTestRegistry()

	const n = 32
	ids := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = r.Upsert(message.EntityTag, "sub/TIC-250-001", nil).Surrogate
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, ids[0], ids[i], "one natural key must never get two surrogate ids")
	}
	assert.Equal(t, 1, r.Len())
}

func TestUpsert_DistinctKeysNeverMerge(t *testing.T) {
	r := newTestRegistry()

	seen := make(map[int64]string)
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("WO-%04d", i)
		res := r.Upsert(message.EntityWorkOrder, key, nil)
		prev, dup := seen[res.Surrogate]
		require.False(t, dup, "surrogate id reused for %s and %s", prev, key)
		seen[res.Surrogate] = key
	}
	assert.Equal(t, 100, r.Len())
}
