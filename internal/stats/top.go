package stats

import (
	"sort"

	"github.com/verte-zerg/klsim/internal/model"
)

// KeyFrequency counts captured keys, most frequent first. Ties sort by key.
func KeyFrequency(stream []model.KeystrokeEvent) []model.KeyCount {
	counts := map[string]int{}
	for _, ev := range stream {
		counts[ev.Key]++
	}
	out := make([]model.KeyCount, 0, len(counts))
	for key, n := range counts {
		out = append(out, model.KeyCount{Key: key, Count: n})
	}
	sortCounts(out)
	return out
}

// TopKeys returns the n most frequent entries of counts. n <= 0 keeps all.
func TopKeys(counts []model.KeyCount, n int) []model.KeyCount {
	out := make([]model.KeyCount, len(counts))
	copy(out, counts)
	sortCounts(out)
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

func sortCounts(counts []model.KeyCount) {
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count == counts[j].Count {
			return counts[i].Key < counts[j].Key
		}
		return counts[i].Count > counts[j].Count
	})
}
