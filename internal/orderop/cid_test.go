package orderop

import (
	"sync"
	"testing"
	"time"
)

func TestCIDGenerator_StrictlyIncreasingUnderFrozenClock(t *testing.T) {
	frozen := time.UnixMilli(1_700_000_000_000)
	g := &CIDGenerator{now: func() time.Time { return frozen }}

	prev := g.Next()
	if prev != frozen.UnixMilli() {
		t.Errorf("first id = %d, want %d", prev, frozen.UnixMilli())
	}
	for i := 0; i < 100; i++ {
		id := g.Next()
		if id <= prev {
			t.Fatalf("id %d not greater than previous %d", id, prev)
		}
		prev = id
	}
}

func TestCIDGenerator_ClockGoingBackwards(t *testing.T) {
	clock := time.UnixMilli(2_000)
	g := &CIDGenerator{now: func() time.Time { return clock }}

	first := g.Next()
	clock = time.UnixMilli(1_000)
	if second := g.Next(); second <= first {
		t.Errorf("second id %d should exceed first %d", second, first)
	}
}

func TestCIDGenerator_Concurrent(t *testing.T) {
	g := NewCIDGenerator()

	const workers, perWorker = 8, 200
	ids := make(chan int64, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ids <- g.Next()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
}

func TestKind_Valid(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindNew, true},
		{KindCancel, true},
		{KindUpdate, true},
		{KindCancelGroup, true},
		{"replace", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := tt.kind.Valid(); got != tt.want {
			t.Errorf("Kind(%q).Valid() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
