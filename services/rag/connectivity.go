package rag

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/rag-gateway/internal/gateway"
)

const connectivityTimeout = 5 * time.Second

// EndpointStatus is the outcome of probing one upstream endpoint.
type EndpointStatus struct {
	Client    string `json:"client"`
	Endpoint  string `json:"endpoint"`
	Reachable bool   `json:"reachable"`
	Detail    string `json:"detail,omitempty"`
}

// CheckConnectivity probes every configured upstream endpoint concurrently.
// A 2xx answer means reachable; 401 and 403 also count, since they prove the
// service is up even when the probe carries no credentials. Probes are best
// effort and never fail startup by themselves.
func CheckConnectivity(ctx context.Context, reg *Registry, gw *gateway.Client, logger *zap.Logger) []EndpointStatus {
	type target struct {
		client   string
		endpoint string
		apiKey   string
	}

	seen := make(map[string]bool)
	var targets []target
	for _, id := range reg.Clients() {
		svc, err := reg.Get(id)
		if err != nil {
			continue
		}
		p := svc.Profile()
		for _, t := range []target{
			{client: id, endpoint: p.OpenAIEndpoint, apiKey: p.OpenAIAPIKey},
			{client: id, endpoint: p.SearchEndpoint, apiKey: p.SearchAPIKey},
		} {
			key := t.client + "|" + t.endpoint
			if seen[key] {
				continue
			}
			seen[key] = true
			targets = append(targets, t)
		}
	}

	results := make([]EndpointStatus, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t target) {
			defer wg.Done()
			results[i] = probe(ctx, gw, t.client, t.endpoint, t.apiKey)
		}(i, t)
	}
	wg.Wait()

	for _, r := range results {
		if r.Reachable {
			logger.Debug("endpoint reachable",
				zap.String("client", r.Client), zap.String("endpoint", r.Endpoint))
			continue
		}
		logger.Warn("endpoint unreachable",
			zap.String("client", r.Client),
			zap.String("endpoint", r.Endpoint),
			zap.String("detail", r.Detail),
		)
	}
	return results
}

func probe(ctx context.Context, gw *gateway.Client, client, endpoint, apiKey string) EndpointStatus {
	status := EndpointStatus{Client: client, Endpoint: endpoint}

	headers := map[string]string{"api-key": apiKey}
	resp, err := gw.Call(ctx, http.MethodGet, endpoint, headers, nil, connectivityTimeout)
	if err != nil {
		status.Detail = err.Error()
		return status
	}

	switch {
	case resp.Status >= 200 && resp.Status < 300:
		status.Reachable = true
	case resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden:
		// The service answered; the probe just lacks a valid credential path.
		status.Reachable = true
	default:
		status.Detail = http.StatusText(resp.Status)
	}
	return status
}
