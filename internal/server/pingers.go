package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/qdrant/go-client/qdrant"
)

// HTTPPinger probes a dependency by issuing a GET against its base URL.
// Used for Ollama and other plain-HTTP backends where any response proves
// reachability. It satisfies the Pinger interface and is used by GET /api/ready.
type HTTPPinger struct {
	// url is the endpoint probed (e.g. "http://localhost:11434").
	url string
	// name identifies the dependency in readiness responses.
	name string
	// client is the HTTP client used for probes.
	client *http.Client
}

// NewHTTPPinger constructs an HTTPPinger for the given URL and dependency name.
func NewHTTPPinger(url, name string) *HTTPPinger {
	return &HTTPPinger{
		url:    url,
		name:   name,
		client: &http.Client{Timeout: probeTimeout},
	}
}

// Name returns the dependency label used in readiness responses.
func (p *HTTPPinger) Name() string { return p.name }

// Ping issues a GET and treats any HTTP response as reachable. Only
// transport-level failures count as down.
func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("create probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("unreachable: %w", err)
	}
	_ = resp.Body.Close()
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
