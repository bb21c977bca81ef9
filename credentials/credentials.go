// Package credentials loads gateway credentials once and serves them to the payment flow.
package credentials

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"payment-gateway-service/logging"
	"payment-gateway-service/models"
	"payment-gateway-service/payerr"
)

// Store is the read-only credential source
type Store interface {
	Select(ctx context.Context, gatewayID string) ([]models.GatewayCredential, error)
}

// Registry holds the credentials of every gateway. Loading starts at construction in
// the background; Get waits for it to finish.
type Registry struct {
	environment string
	ready       chan struct{}

	mu    sync.RWMutex
	creds map[string]models.GatewayCredential
}

// NewRegistry starts loading credentials for gatewayIDs from store. Credentials whose
// environment matches environment are preferred over others.
func NewRegistry(store Store, environment string, gatewayIDs []string) *Registry {
	r := &Registry{
		environment: environment,
		ready:       make(chan struct{}),
		creds:       make(map[string]models.GatewayCredential, len(gatewayIDs)),
	}
	go r.load(store, gatewayIDs)
	return r
}

func (r *Registry) load(store Store, gatewayIDs []string) {
	defer close(r.ready)
	ctx := context.Background()

	for _, id := range gatewayIDs {
		list, err := store.Select(ctx, id)
		if err != nil {
			logging.Error("Failed to load gateway credentials", zap.String("gateway", id), zap.Error(err))
			continue
		}
		cred, ok := r.pick(list)
		if !ok {
			logging.Warn("No active credentials for gateway", zap.String("gateway", id))
			continue
		}
		r.mu.Lock()
		r.creds[id] = cred
		r.mu.Unlock()
	}
	logging.Info("Gateway credentials loaded", zap.Int("gateways", len(r.creds)))
}

func (r *Registry) pick(list []models.GatewayCredential) (models.GatewayCredential, bool) {
	var fallback *models.GatewayCredential
	for i := range list {
		c := list[i]
		if !c.Active {
			continue
		}
		if c.Environment == r.environment {
			return c, true
		}
		if fallback == nil {
			fallback = &list[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return models.GatewayCredential{}, false
}

func (r *Registry) wait(ctx context.Context) error {
	select {
	case <-r.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get returns the credential of gatewayID, blocking until loading has finished or ctx
// is done.
func (r *Registry) Get(ctx context.Context, gatewayID string) (models.GatewayCredential, error) {
	if err := r.wait(ctx); err != nil {
		return models.GatewayCredential{}, payerr.Wrap(payerr.ProcessingError, err)
	}

	r.mu.RLock()
	cred, ok := r.creds[gatewayID]
	r.mu.RUnlock()
	if !ok {
		return models.GatewayCredential{}, payerr.New(payerr.GatewayNotSupported,
			"Gateway "+gatewayID+" is not configured", "بوابة الدفع غير مهيأة")
	}
	return cred, nil
}

// Configured reports whether gatewayID has a credential. Like Get it waits for loading;
// a done ctx reports false.
func (r *Registry) Configured(ctx context.Context, gatewayID string) bool {
	if r.wait(ctx) != nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.creds[gatewayID]
	return ok
}
