package stats

import (
	"testing"
	"time"

	"github.com/verte-zerg/klsim/internal/model"
)

func streamOf(text string, step time.Duration) []model.KeystrokeEvent {
	start := time.Unix(100, 0)
	var out []model.KeystrokeEvent
	for i, r := range []rune(text) {
		out = append(out, model.KeystrokeEvent{Key: string(r), Timestamp: start.Add(time.Duration(i) * step)})
	}
	return out
}

func TestKeyFrequency(t *testing.T) {
	counts := KeyFrequency(streamOf("banana", time.Second))
	want := []model.KeyCount{{Key: "a", Count: 3}, {Key: "n", Count: 2}, {Key: "b", Count: 1}}
	if len(counts) != len(want) {
		t.Fatalf("expected %d keys, got %v", len(want), counts)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Fatalf("unexpected order: %v", counts)
		}
	}
}

func TestTopKeys(t *testing.T) {
	counts := []model.KeyCount{
		{Key: "c", Count: 1},
		{Key: "b", Count: 4},
		{Key: "a", Count: 4},
	}
	top := TopKeys(counts, 2)
	if len(top) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(top))
	}
	if top[0].Key != "a" || top[1].Key != "b" {
		t.Fatalf("unexpected order: %v", top)
	}
	if counts[0].Key != "c" {
		t.Fatalf("input was reordered: %v", counts)
	}
}
