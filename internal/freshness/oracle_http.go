package freshness

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPOracle reads indexed-through watermarks from the external CDC index
// service over HTTP. The index's own ingestion pipeline is out of scope;
// this client only consumes its read contract.
type HTTPOracle struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPOracle builds an oracle client against the given base URL.
func NewHTTPOracle(baseURL string) *HTTPOracle {
	return &HTTPOracle{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

type oracleRecordWire struct {
	Topic                string    `json:"topic"`
	Partition            string    `json:"partition"`
	GenerationID         string    `json:"generation_id"`
	IndexedThroughOffset string    `json:"indexed_through_offset"`
	IndexedThroughTime   time.Time `json:"indexed_through_time"`
	CoverageStart        time.Time `json:"coverage_start"`
	CoverageEnd          time.Time `json:"coverage_end"`
}

type oracleResponse struct {
	Records []oracleRecordWire `json:"records"`
}

// ReadIndexedThrough fetches the current indexed-through state for every
// requested partition. A partition absent from the response is simply
// omitted from the returned map; the caller treats that as unknown.
func (o *HTTPOracle) ReadIndexedThrough(ctx context.Context, tenantID, instanceID, source string, partitions []PartitionKey) (map[PartitionKey]OracleRecord, error) {
	q := url.Values{}
	q.Set("tenant_id", tenantID)
	q.Set("instance_id", instanceID)
	q.Set("source", source)
	for _, p := range partitions {
		q.Add("partition", p.Topic+"/"+p.Partition)
	}

	reqURL := fmt.Sprintf("%s/v1/indexed-through?%s", o.baseURL, q.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("freshness: building oracle request: %w", err)
	}

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("freshness: calling oracle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("freshness: oracle returned status %d", resp.StatusCode)
	}

	var body oracleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("freshness: decoding oracle response: %w", err)
	}

	out := make(map[PartitionKey]OracleRecord, len(body.Records))
	for _, rec := range body.Records {
		out[PartitionKey{Topic: rec.Topic, Partition: rec.Partition}] = OracleRecord{
			GenerationID:         rec.GenerationID,
			IndexedThroughOffset: rec.IndexedThroughOffset,
			IndexedThroughTime:   rec.IndexedThroughTime,
			CoverageStart:        rec.CoverageStart,
			CoverageEnd:          rec.CoverageEnd,
		}
	}
	return out, nil
}

var _ Oracle = (*HTTPOracle)(nil)
