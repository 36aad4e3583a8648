package parallel

import (
	"sync/atomic"
	"testing"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func TestForVisitsEachIndexOnce(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 7, MinChunkSize: 3}

	n := 500
	hits := make([]int32, n)
	For(n, func(i int) {
		atomic.AddInt32(&hits[i], 1)
	}, cfg)

	for i, h := range hits {
		if h != 1 {
			t.Fatalf("index %d visited %d times", i, h)
		}
	}
}

func TestForBatch(t *testing.T) {
	cfg := DefaultConfig()

	batch, channels := 4, 8
	results := make([][]bool, batch)
	for b := range results {
		results[b] = make([]bool, channels)
	}

	ForBatch(batch, channels, func(b, c int) {
		results[b][c] = true
	}, cfg)

	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			if !results[b][c] {
				t.Errorf("Missing result at [%d][%d]", b, c)
			}
		}
	}
}

func TestFor_Sequential(t *testing.T) {
	cfg := Config{Enabled: false}

	var counter int64
	For(100, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != 100 {
		t.Errorf("Expected 100, got %d", counter)
	}
}

func TestForRangeCoversDisjointRanges(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 10}

	var total int64
	var calls int64
	ForRange(95, func(start, end int) {
		atomic.AddInt64(&calls, 1)
		atomic.AddInt64(&total, int64(end-start))
	}, cfg)

	if total != 95 {
		t.Errorf("covered %d items, want 95", total)
	}
	if calls != int64(cfg.Workers(95)) {
		t.Errorf("got %d ranges, Workers reports %d", calls, cfg.Workers(95))
	}
}

func TestWorkers(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 64}

	if w := cfg.Workers(10); w != 1 {
		t.Errorf("small input should run on one worker, got %d", w)
	}
	if w := cfg.Workers(1000); w != 4 {
		t.Errorf("Workers(1000) = %d, want 4", w)
	}
	if w := (Config{Enabled: false, NumWorkers: 8}).Workers(1000); w != 1 {
		t.Errorf("disabled config should run on one worker, got %d", w)
	}
}

func TestForRangeEmpty(t *testing.T) {
	ForRange(0, func(_, _ int) {
		t.Fatal("should not be called")
	}, DefaultConfig())
}
