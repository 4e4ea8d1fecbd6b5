package freshness

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

type fakeOracle struct {
	records map[PartitionKey]OracleRecord
}

func (f *fakeOracle) ReadIndexedThrough(_ context.Context, _, _, _ string, partitions []PartitionKey) (map[PartitionKey]OracleRecord, error) {
	if partitions == nil {
		return f.records, nil
	}
	out := make(map[PartitionKey]OracleRecord)
	for _, p := range partitions {
		if rec, ok := f.records[p]; ok {
			out[p] = rec
		}
	}
	return out, nil
}

func TestReadWatermarksForPartitions_BoundaryLagEqualsThresholdIsFresh(t *testing.T) {
	measuredAt := time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC)
	p := PartitionKey{Topic: "incident", Partition: "0"}
	oracle := &fakeOracle{records: map[PartitionKey]OracleRecord{
		p: {IndexedThroughTime: measuredAt.Add(-120 * time.Second)},
	}}
	reader := NewReader(oracle, nil, slog.Default(), 120*time.Second)

	wms, err := reader.ReadWatermarksForPartitions(context.Background(), "t", "i", "s", measuredAt, []PartitionKey{p})
	if err != nil {
		t.Fatalf("ReadWatermarksForPartitions() error: %v", err)
	}
	if wms[0].Freshness != FreshnessFresh || wms[0].Executability != ExecutabilityExecutable {
		t.Errorf("lag==threshold should be fresh/executable, got %s/%s", wms[0].Freshness, wms[0].Executability)
	}
}

func TestReadWatermarksForPartitions_BoundaryLagOverThresholdIsStale(t *testing.T) {
	measuredAt := time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC)
	p := PartitionKey{Topic: "incident", Partition: "0"}
	oracle := &fakeOracle{records: map[PartitionKey]OracleRecord{
		p: {IndexedThroughTime: measuredAt.Add(-121 * time.Second)},
	}}
	reader := NewReader(oracle, nil, slog.Default(), 120*time.Second)

	wms, err := reader.ReadWatermarksForPartitions(context.Background(), "t", "i", "s", measuredAt, []PartitionKey{p})
	if err != nil {
		t.Fatalf("ReadWatermarksForPartitions() error: %v", err)
	}
	if wms[0].Freshness != FreshnessStale || wms[0].Executability != ExecutabilityPreviewOnly {
		t.Errorf("lag==threshold+1 should be stale/preview_only, got %s/%s", wms[0].Freshness, wms[0].Executability)
	}
	if wms[0].ReasonCode != "blocked_freshness_stale" {
		t.Errorf("reason_code = %q", wms[0].ReasonCode)
	}
}

func TestReadWatermarksForPartitions_MissingPartitionIsUnknownBlocked(t *testing.T) {
	measuredAt := time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC)
	p := PartitionKey{Topic: "incident", Partition: "1"}
	oracle := &fakeOracle{records: map[PartitionKey]OracleRecord{}}
	reader := NewReader(oracle, nil, slog.Default(), 120*time.Second)

	wms, err := reader.ReadWatermarksForPartitions(context.Background(), "t", "i", "s", measuredAt, []PartitionKey{p})
	if err != nil {
		t.Fatalf("ReadWatermarksForPartitions() error: %v", err)
	}
	if wms[0].Freshness != FreshnessUnknown || wms[0].Executability != ExecutabilityBlocked {
		t.Errorf("missing partition should be unknown/blocked, got %s/%s", wms[0].Freshness, wms[0].Executability)
	}
	if wms[0].ReasonCode != "blocked_freshness_unknown" {
		t.Errorf("reason_code = %q", wms[0].ReasonCode)
	}
	if wms[0].IndexedThroughOffset != "0" {
		t.Errorf("synthetic record should have zero offset, got %q", wms[0].IndexedThroughOffset)
	}
}
