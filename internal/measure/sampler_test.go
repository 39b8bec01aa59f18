package measure

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeSpecs(weights ...int) []EndpointSpec {
	specs := make([]EndpointSpec, len(weights))
	for i, w := range weights {
		specs[i] = EndpointSpec{Weight: w, HostPattern: fmt.Sprintf("host-%d.example.com", i), Kinds: KindHTTPS}
	}
	return specs
}

func TestSampleReturnsDistinctEndpoints(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		pool := NewPool(makeSpecs(1, 7, 3, 100, 2, 9))
		sampler := NewSampler(rand.New(rand.NewSource(seed)))

		got, err := sampler.Sample(pool, 4)
		require.NoError(t, err)
		require.Len(t, got, 4)

		seen := map[string]bool{}
		for _, spec := range got {
			assert.False(t, seen[spec.HostPattern], "duplicate %s for seed %d", spec.HostPattern, seed)
			seen[spec.HostPattern] = true
		}
		assert.Equal(t, 2, pool.Len())
	}
}

func TestSampleExhaustsPool(t *testing.T) {
	specs := makeSpecs(4, 4, 1, 1, 10)
	pool := NewPool(specs)
	sampler := NewSampler(rand.New(rand.NewSource(7)))

	first, err := sampler.Sample(pool, 3)
	require.NoError(t, err)
	second, err := sampler.Sample(pool, 10)
	require.NoError(t, err)
	third, err := sampler.Sample(pool, 1)
	require.NoError(t, err)

	assert.Len(t, first, 3)
	assert.Len(t, second, 2)
	assert.Empty(t, third)
	assert.Equal(t, 0, pool.Len())
	assert.Equal(t, 0, pool.Weight())

	all := append(append([]EndpointSpec{}, first...), second...)
	assert.ElementsMatch(t, specs, all)
}

func TestSampleIsDeterministicForSeed(t *testing.T) {
	run := func() []EndpointSpec {
		pool := NewPool(makeSpecs(5, 1, 8, 2, 2, 30))
		got, err := NewSampler(rand.New(rand.NewSource(42))).Sample(pool, 5)
		require.NoError(t, err)
		return got
	}
	assert.Equal(t, run(), run())
}

func TestSampleFavoursHeavyEndpoints(t *testing.T) {
	heavy := 0
	sampler := NewSampler(rand.New(rand.NewSource(1)))
	for i := 0; i < 2000; i++ {
		pool := NewPool(makeSpecs(1, 99))
		got, err := sampler.Sample(pool, 1)
		require.NoError(t, err)
		if got[0].HostPattern == "host-1.example.com" {
			heavy++
		}
	}
	assert.Greater(t, heavy, 1900)
}

func TestSampleZeroWeightFailsFast(t *testing.T) {
	pool := NewPool(makeSpecs(0, 0))
	_, err := NewSampler(rand.New(rand.NewSource(1))).Sample(pool, 1)
	assert.ErrorIs(t, err, ErrZeroWeight)
}

func TestSampleEmptyPool(t *testing.T) {
	got, err := NewSampler(nil).Sample(NewPool(nil), 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNewPoolCopiesInput(t *testing.T) {
	specs := makeSpecs(1, 2)
	pool := NewPool(specs)
	_, err := NewSampler(rand.New(rand.NewSource(3))).Sample(pool, 2)
	require.NoError(t, err)
	assert.Equal(t, "host-0.example.com", specs[0].HostPattern)
	assert.Equal(t, "host-1.example.com", specs[1].HostPattern)
}
