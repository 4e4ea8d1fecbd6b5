package sourcing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2/clientcredentials"
)

// ACPClient resolves source mappings against the live Auth Control Plane
// over HTTP, authenticating with an OIDC client-credentials token. It is
// the "live authorization oracle" MappingResolver implementation; the
// ACP's own internals (session handling, entitlement computation) are an
// external collaborator and not modeled here.
type ACPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewACPClient builds a client that fetches a service token via OIDC
// client-credentials before calling the ACP's mapping-resolution endpoint.
func NewACPClient(ctx context.Context, baseURL, issuerURL, clientID, clientSecret string) (*ACPClient, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("sourcing: discovering ACP OIDC provider: %w", err)
	}

	ccCfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     provider.Endpoint().TokenURL,
	}

	return &ACPClient{
		baseURL:    baseURL,
		httpClient: ccCfg.Client(ctx),
	}, nil
}

type acpResolveResponse struct {
	Outcome         string  `json:"outcome"`
	Mapping         Mapping `json:"mapping"`
	ServiceAllowed  bool    `json:"service_allowed"`
	CanonicalSource string  `json:"canonical_source"`
	Message         string  `json:"message"`
}

// ResolveSourceMapping calls the ACP's mapping-resolution endpoint. Any
// transport or non-2xx failure is reported as an OutcomeOutage result
// rather than a Go error, matching the resolver contract's three-way result.
func (c *ACPClient) ResolveSourceMapping(ctx context.Context, req ResolveRequest) (Result, error) {
	url := fmt.Sprintf("%s/v1/mappings/%s/%s?service_scope=%s",
		c.baseURL, req.TenantID, req.InstanceID, req.ServiceScope)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, fmt.Errorf("sourcing: building ACP request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{Outcome: OutcomeOutage, Message: err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Result{Outcome: OutcomeNotFound}, nil
	}
	if resp.StatusCode >= 500 {
		return Result{Outcome: OutcomeOutage, Message: fmt.Sprintf("ACP returned status %d", resp.StatusCode)}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("sourcing: unexpected ACP status %d", resp.StatusCode)
	}

	var body acpResolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{Outcome: OutcomeOutage, Message: "malformed ACP response"}, nil
	}

	return Result{
		Outcome:         Outcome(body.Outcome),
		Mapping:         body.Mapping,
		ServiceAllowed:  body.ServiceAllowed,
		CanonicalSource: body.CanonicalSource,
		Message:         body.Message,
	}, nil
}

var _ MappingResolver = (*ACPClient)(nil)
