package rag

import (
	"sort"

	"go.uber.org/zap"

	"github.com/upb/rag-gateway/internal/gateway"
	"github.com/upb/rag-gateway/services"
)

// Registry holds one pipeline service per client. It is built once at
// startup and never mutated afterwards, so lookups need no locking.
type Registry struct {
	services map[string]*Service
}

// NewRegistry constructs a service for every profile. Profiles are validated
// here; a single bad profile fails startup rather than surfacing later as a
// request error.
func NewRegistry(profiles []*ClientProfile, gw *gateway.Client, logger *zap.Logger) (*Registry, error) {
	svcs := make(map[string]*Service, len(profiles))
	for _, p := range profiles {
		svc, err := NewService(p, gw, logger)
		if err != nil {
			return nil, err
		}
		svcs[p.ID] = svc
	}
	return &Registry{services: svcs}, nil
}

// Get returns the pipeline for a client id.
func (r *Registry) Get(clientID string) (*Service, error) {
	svc, ok := r.services[clientID]
	if !ok {
		return nil, services.NewDomainError(services.ErrorTypeNotFound, "client not found", nil).
			WithDetail("client_id", clientID)
	}
	return svc, nil
}

// Clients returns the configured client ids in sorted order.
func (r *Registry) Clients() []string {
	ids := make([]string, 0, len(r.services))
	for id := range r.services {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of configured clients.
func (r *Registry) Len() int {
	return len(r.services)
}
