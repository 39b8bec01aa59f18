package collector

import (
	"testing"

	"github.com/inetanalyzer/agent/pkg/types"
)

func TestReportStoreEvictsOldest(t *testing.T) {
	store := NewReportStore(2)
	if store.Add(types.UploadEnvelope{RunID: "1"}) {
		t.Fatalf("unexpected eviction")
	}
	store.Add(types.UploadEnvelope{RunID: "2"})
	if !store.Add(types.UploadEnvelope{RunID: "3"}) {
		t.Fatalf("expected eviction at capacity")
	}

	got := store.List(0)
	if len(got) != 2 || got[0].RunID != "3" || got[1].RunID != "2" {
		t.Fatalf("unexpected contents newest first: %+v", got)
	}
	if stats := store.Stats(); stats.Dropped != 1 || stats.Received != 3 || stats.Len != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestReportStoreListLimit(t *testing.T) {
	store := NewReportStore(0)
	store.Add(types.UploadEnvelope{RunID: "only"})
	if got := store.List(5); len(got) != 1 {
		t.Fatalf("expected one item, got %d", len(got))
	}
	store.Add(types.UploadEnvelope{RunID: "next"})
	if got := store.List(1); len(got) != 1 || got[0].RunID != "next" {
		t.Fatalf("unexpected list %+v", got)
	}
}
