package vstsqlitevec_test

import (
	"context"
	"testing"

	"github.com/abraxas-365/personal-ai-core/pkg/ai/vstore"
	"github.com/abraxas-365/personal-ai-core/pkg/ai/vstore/providers/vstsqlitevec"
)

// TestQueryWithFilter_TiedScoresBreakByIDAscending pins stable ordering
// for the sqlite-vec provider: three identical vectors are equidistant from the
// query, so the result order must come down to id alone.
func TestQueryWithFilter_TiedScoresBreakByIDAscending(t *testing.T) {
	store, err := vstsqlitevec.Open(":memory:", 3)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	same := []float32{1, 0, 0}
	err = store.Upsert(context.Background(), []vstore.Vector{
		{ID: "c", Values: same},
		{ID: "a", Values: same},
		{ID: "b", Values: same},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	result, err := store.QueryWithFilter(context.Background(), same, vstore.Filter{}, vstore.WithTopK(3))
	if err != nil {
		t.Fatalf("QueryWithFilter: %v", err)
	}
	if len(result.Matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(result.Matches))
	}
	got := []string{result.Matches[0].ID, result.Matches[1].ID, result.Matches[2].ID}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tie-break order = %v, want %v", got, want)
		}
	}
}
