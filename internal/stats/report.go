package stats

import (
	"context"

	"github.com/verte-zerg/klsim/internal/model"
	"github.com/verte-zerg/klsim/internal/store"
)

// History contains saved reports prepared for rendering.
type History struct {
	// Records are ordered oldest first.
	Records   []model.ReportRecord
	KeyCounts []model.KeyCount
}

// BuildHistory loads the last reports and their aggregated key counts.
func BuildHistory(ctx context.Context, st *store.Store, last int) (History, error) {
	records, err := st.ListReports(ctx, last)
	if err != nil {
		return History{}, err
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	counts, err := st.KeyCounts(ctx, reportIDs(records))
	if err != nil {
		return History{}, err
	}
	return History{Records: records, KeyCounts: counts}, nil
}

func reportIDs(records []model.ReportRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
