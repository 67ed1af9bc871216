package vstmemory_test

import (
	"context"
	"testing"

	"github.com/abraxas-365/personal-ai-core/pkg/ai/vstore"
	"github.com/abraxas-365/personal-ai-core/pkg/ai/vstore/providers/vstmemory"
)

// TestQuery_TiedScoresBreakByIDAscending pins stable ordering for the
// in-memory provider: three identical vectors score identically against any query,
// so Query must return them sorted by id alone.
func TestQuery_TiedScoresBreakByIDAscending(t *testing.T) {
	store := vstmemory.NewMemoryVectorStore(3, vstore.MetricCosine)

	same := []float32{1, 0, 0}
	err := store.Upsert(context.Background(), []vstore.Vector{
		{ID: "c", Values: same},
		{ID: "a", Values: same},
		{ID: "b", Values: same},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	result, err := store.Query(context.Background(), same, vstore.WithTopK(3))
	if err != nil {
		t.Fatalf("Query: %v", err)
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
