package ids

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateULIDIsSortable(t *testing.T) {
	const total = 100
	prev := ""
	for i := 0; i < total; i++ {
		id := CreateULID()
		require.Len(t, id, 26)
		_, err := ulid.Parse(id)
		require.NoError(t, err)
		if prev != "" {
			require.Less(t, prev, id)
		}
		prev = id
	}
}

func TestCreateULIDConcurrentUniqueness(t *testing.T) {
	const goroutines = 8
	const perGoroutine = 25

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{})
	)
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				id := CreateULID()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine)
}

func TestULIDSourceUsesClock(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src := NewULIDSource(bytes.NewReader(bytes.Repeat([]byte{1}, 4096)))
	src.now = func() time.Time { return fixed }

	first, second := src.Next(), src.Next()
	assert.Less(t, first, second, "monotonic within the same millisecond")

	ts, err := ULIDTime(first)
	require.NoError(t, err)
	assert.True(t, fixed.Equal(ts), "got %s", ts)
}

func TestULIDTimeRejectsGarbage(t *testing.T) {
	_, err := ULIDTime("not-a-ulid")
	assert.Error(t, err)
}

func TestSequence(t *testing.T) {
	tests := []struct {
		name  string
		start uint64
		want  []uint64
	}{
		{"zero start begins at one", 0, []uint64{1, 2, 3}},
		{"explicit start", 1, []uint64{1, 2, 3}},
		{"resumed", 500, []uint64{500, 501}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := NewSequence(tt.start)
			for _, want := range tt.want {
				assert.Equal(t, want, seq.Next())
			}
			assert.Equal(t, tt.want[len(tt.want)-1], seq.Last())
		})
	}
}

func TestSequenceConcurrentNext(t *testing.T) {
	seq := NewSequence(1)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				seq.Next()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(1000), seq.Last())
}
