package source

import (
	"math/rand"
	"testing"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cite(url string, start, end int) core.Citation {
	return core.Citation{URL: url, StartIndex: core.IntPtr(start), EndIndex: core.IntPtr(end)}
}

func numberByURL(sources []core.SourceReference) map[string]int {
	m := make(map[string]int, len(sources))
	for _, s := range sources {
		m[s.URL] = s.Number
	}
	return m
}

func TestAdd_RenumbersInReadingOrder(t *testing.T) {
	var sources []core.SourceReference

	sources, first := Add(sources, cite("c", 40, 45))
	assert.Equal(t, 1, first.Number)

	sources, second := Add(sources, cite("a", 2, 6))
	assert.Equal(t, 1, second.Number, "earlier span takes rank 1")

	sources, _ = Add(sources, cite("b", 10, 12))

	assert.Equal(t, map[string]int{"a": 1, "b": 2, "c": 3}, numberByURL(sources))
	assert.True(t, Valid(sources))
}

func TestAdd_UnknownPositionSortsLast(t *testing.T) {
	var sources []core.SourceReference
	sources, _ = Add(sources, core.Citation{URL: "loose"})
	sources, _ = Add(sources, cite("x", 100, 101))
	sources, _ = Add(sources, core.Citation{URL: "loose2"})

	assert.Equal(t, map[string]int{"x": 1, "loose": 2, "loose2": 3}, numberByURL(sources))
}

func TestAdd_DoesNotMutateInput(t *testing.T) {
	sources, _ := Add(nil, cite("b", 10, 12))
	before := sources[0]
	_, _ = Add(sources, cite("a", 1, 2))
	assert.Equal(t, before, sources[0])
}

func TestAdd_ArrivalOrderIndependent(t *testing.T) {
	citations := []core.Citation{
		cite("a", 0, 3), cite("b", 5, 9), cite("c", 12, 13), cite("d", 20, 25), cite("e", 30, 31),
		{URL: "z"},
	}

	var want map[string]int
	r := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		perm := r.Perm(len(citations))
		var sources []core.SourceReference
		for _, i := range perm {
			sources, _ = Add(sources, citations[i])
			require.True(t, Valid(sources))
		}
		got := numberByURL(sources)
		if want == nil {
			want = got
			continue
		}
		assert.Equal(t, want, got, "permutation %v", perm)
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(nil))
	assert.False(t, Valid([]core.SourceReference{{StartIndex: core.IntPtr(1), Number: 2}}))
	assert.False(t, Valid([]core.SourceReference{
		{StartIndex: core.IntPtr(9), Number: 1},
		{StartIndex: core.IntPtr(1), Number: 2},
	}))
}

func TestCollect_WritesNumbersBack(t *testing.T) {
	late := NewReference(cite("late", 30, 35))
	early := NewReference(cite("early", 4, 8))
	loose := NewReference(core.Citation{URL: "loose"})

	ts := []transform.Transform{
		transform.NewCitation(late),
		transform.NewImage(20, "img", "i"),
		transform.NewCitation(early),
	}

	all, out := Collect(ts, []core.SourceReference{loose})
	require.Len(t, all, 3)
	assert.Equal(t, map[string]int{"early": 1, "late": 2, "loose": 3}, numberByURL(all))

	assert.Equal(t, 2, out[0].(*transform.Citation).Sources[0].Number)
	assert.Same(t, ts[1], out[1])
	assert.Equal(t, 1, out[2].(*transform.Citation).Sources[0].Number)

	// inputs untouched
	assert.Equal(t, 0, ts[0].(*transform.Citation).Sources[0].Number)
}
