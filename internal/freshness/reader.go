package freshness

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheTTL          = 30 * time.Second
	redisKeyPrefix    = "rcs:watermark:"
	defaultStaleAfter = 120 * time.Second
)

// Reader implements RestoreIndexReader: a Redis hot path in front of the
// oracle (cache hit / oracle fallback / cache warm), applied to watermark
// lookups.
type Reader struct {
	oracle     Oracle
	rdb        *redis.Client
	logger     *slog.Logger
	staleAfter time.Duration
}

// NewReader creates a Reader. staleAfter defaults to 120s when zero.
func NewReader(oracle Oracle, rdb *redis.Client, logger *slog.Logger, staleAfter time.Duration) *Reader {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &Reader{oracle: oracle, rdb: rdb, logger: logger, staleAfter: staleAfter}
}

func cacheKey(tenantID, instanceID, source string, p PartitionKey) string {
	return fmt.Sprintf("%s%s:%s:%s:%s:%s", redisKeyPrefix, tenantID, instanceID, source, p.Topic, p.Partition)
}

// ReadWatermarksForPartitions returns one Watermark per requested partition,
// using the oracle's recorded state (via Redis cache) and recomputing
// freshness against measuredAt. A partition the oracle has never seen
// yields a synthetic unknown/blocked record with a zero offset and
// measuredAt used as its coverage bounds.
func (r *Reader) ReadWatermarksForPartitions(ctx context.Context, tenantID, instanceID, source string, measuredAt time.Time, partitions []PartitionKey) ([]Watermark, error) {
	out := make([]Watermark, 0, len(partitions))
	misses := make([]PartitionKey, 0)
	cached := make(map[PartitionKey]OracleRecord)

	if r.rdb != nil {
		for _, p := range partitions {
			val, err := r.rdb.Get(ctx, cacheKey(tenantID, instanceID, source, p)).Result()
			if err == nil {
				var rec OracleRecord
				if jsonErr := json.Unmarshal([]byte(val), &rec); jsonErr == nil {
					cached[p] = rec
					continue
				}
				r.logger.Warn("invalid watermark cache entry", "key", cacheKey(tenantID, instanceID, source, p))
			} else if err != redis.Nil {
				r.logger.Warn("redis watermark lookup failed, falling back to oracle", "error", err)
			}
			misses = append(misses, p)
		}
	} else {
		misses = partitions
	}

	var fetched map[PartitionKey]OracleRecord
	if len(misses) > 0 {
		var err error
		fetched, err = r.oracle.ReadIndexedThrough(ctx, tenantID, instanceID, source, misses)
		if err != nil {
			return nil, fmt.Errorf("freshness: reading oracle state: %w", err)
		}
		r.warmCache(ctx, tenantID, instanceID, source, fetched)
	}

	for _, p := range partitions {
		if rec, ok := cached[p]; ok {
			out = append(out, r.toWatermark(tenantID, instanceID, source, p, measuredAt, rec, true))
			continue
		}
		if rec, ok := fetched[p]; ok {
			out = append(out, r.toWatermark(tenantID, instanceID, source, p, measuredAt, rec, true))
			continue
		}
		out = append(out, r.toWatermark(tenantID, instanceID, source, p, measuredAt, OracleRecord{
			IndexedThroughOffset: "0",
			CoverageStart:        measuredAt,
			CoverageEnd:          measuredAt,
		}, false))
	}

	return out, nil
}

// ListWatermarksForSource enumerates every partition the oracle currently
// reports for source by issuing a read with no partition filter.
func (r *Reader) ListWatermarksForSource(ctx context.Context, tenantID, instanceID, source string, measuredAt time.Time) ([]Watermark, error) {
	records, err := r.oracle.ReadIndexedThrough(ctx, tenantID, instanceID, source, nil)
	if err != nil {
		return nil, fmt.Errorf("freshness: listing oracle state: %w", err)
	}
	r.warmCache(ctx, tenantID, instanceID, source, records)

	out := make([]Watermark, 0, len(records))
	for p, rec := range records {
		out = append(out, r.toWatermark(tenantID, instanceID, source, p, measuredAt, rec, true))
	}
	return out, nil
}

func (r *Reader) toWatermark(tenantID, instanceID, source string, p PartitionKey, measuredAt time.Time, rec OracleRecord, known bool) Watermark {
	freshness, executability, reason := classify(rec.IndexedThroughTime, measuredAt, r.staleAfter, known)
	return Watermark{
		TenantID:             tenantID,
		InstanceID:           instanceID,
		Source:               source,
		Topic:                p.Topic,
		Partition:            p.Partition,
		GenerationID:         rec.GenerationID,
		IndexedThroughOffset: rec.IndexedThroughOffset,
		IndexedThroughTime:   rec.IndexedThroughTime,
		CoverageStart:        rec.CoverageStart,
		CoverageEnd:          rec.CoverageEnd,
		MeasuredAt:           measuredAt,
		Freshness:            freshness,
		Executability:        executability,
		ReasonCode:           reason,
	}
}

func (r *Reader) warmCache(ctx context.Context, tenantID, instanceID, source string, records map[PartitionKey]OracleRecord) {
	if r.rdb == nil {
		return
	}
	for p, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		if err := r.rdb.Set(ctx, cacheKey(tenantID, instanceID, source, p), raw, cacheTTL).Err(); err != nil {
			r.logger.Warn("failed to warm watermark cache", "error", err)
		}
	}
}
