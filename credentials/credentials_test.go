package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-gateway-service/config"
	"payment-gateway-service/models"
	"payment-gateway-service/payerr"
)

type gatedStore struct {
	gate  chan struct{}
	inner Store
}

func (s *gatedStore) Select(ctx context.Context, gatewayID string) ([]models.GatewayCredential, error) {
	<-s.gate
	return s.inner.Select(ctx, gatewayID)
}

type failingStore struct{}

func (failingStore) Select(ctx context.Context, gatewayID string) ([]models.GatewayCredential, error) {
	return nil, errors.New("connection refused")
}

func TestGetWaitsForLoading(t *testing.T) {
	store := &gatedStore{
		gate:  make(chan struct{}),
		inner: NewStaticStore(models.GatewayCredential{GatewayID: "mada", APIKey: "k", Environment: "sandbox", Active: true}),
	}
	r := NewRegistry(store, "sandbox", []string{"mada"})

	got := make(chan models.GatewayCredential, 1)
	go func() {
		cred, err := r.Get(context.Background(), "mada")
		assert.NoError(t, err)
		got <- cred
	}()

	select {
	case <-got:
		t.Fatal("Get returned before credentials were loaded")
	case <-time.After(20 * time.Millisecond):
	}

	close(store.gate)
	select {
	case cred := <-got:
		assert.Equal(t, "k", cred.APIKey)
	case <-time.After(time.Second):
		t.Fatal("Get did not return after loading")
	}
}

func TestGetHonorsContext(t *testing.T) {
	r := NewRegistry(&gatedStore{gate: make(chan struct{})}, "sandbox", []string{"mada"})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Get(ctx, "mada")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, r.Configured(ctx, "mada"))
}

func TestEnvironmentPreference(t *testing.T) {
	store := NewStaticStore(
		models.GatewayCredential{GatewayID: "stripe", SecretKey: "sk_test", Environment: "sandbox", Active: true},
		models.GatewayCredential{GatewayID: "stripe", SecretKey: "sk_live", Environment: "production", Active: true},
		models.GatewayCredential{GatewayID: "mada", APIKey: "old", Environment: "production", Active: false},
		models.GatewayCredential{GatewayID: "paytabs", SecretKey: "only", Environment: "sandbox", Active: true},
	)
	r := NewRegistry(store, "production", []string{"stripe", "mada", "paytabs"})

	cred, err := r.Get(context.Background(), "stripe")
	require.NoError(t, err)
	assert.Equal(t, "sk_live", cred.SecretKey)

	cred, err = r.Get(context.Background(), "paytabs")
	require.NoError(t, err)
	assert.Equal(t, "only", cred.SecretKey)

	_, err = r.Get(context.Background(), "mada")
	assert.Equal(t, payerr.GatewayNotSupported, payerr.CodeOf(err))
}

func TestStoreFailureLeavesGatewayUnconfigured(t *testing.T) {
	r := NewRegistry(failingStore{}, "sandbox", []string{"mada"})
	assert.False(t, r.Configured(context.Background(), "mada"))
	_, err := r.Get(context.Background(), "mada")
	assert.Equal(t, payerr.GatewayNotSupported, payerr.CodeOf(err))
}

func TestConfiguredWaitsForLoading(t *testing.T) {
	store := &gatedStore{
		gate:  make(chan struct{}),
		inner: NewStaticStore(models.GatewayCredential{GatewayID: "paytabs", SecretKey: "k", Active: true}),
	}
	r := NewRegistry(store, "sandbox", []string{"paytabs", "mada"})

	done := make(chan bool, 1)
	go func() { done <- r.Configured(context.Background(), "paytabs") }()

	select {
	case <-done:
		t.Fatal("Configured returned before credentials were loaded")
	case <-time.After(20 * time.Millisecond):
	}

	close(store.gate)
	assert.True(t, <-done)
	assert.False(t, r.Configured(context.Background(), "mada"))
}

func TestFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.Environment = "sandbox"
	cfg.Mada.APIKey = "sk_mada"
	cfg.PayTabs.ProfileID = "87654"
	cfg.PayTabs.ServerKey = "server"
	cfg.BankTransfer.IBAN = "SA0380000000608010167519"

	store := FromConfig(cfg)
	ctx := context.Background()

	mada, _ := store.Select(ctx, "mada")
	require.Len(t, mada, 1)
	assert.Equal(t, "sk_mada", mada[0].APIKey)

	paytabs, _ := store.Select(ctx, "paytabs")
	require.Len(t, paytabs, 1)
	assert.Equal(t, "87654", paytabs[0].ExtraValue("profile_id"))

	bank, _ := store.Select(ctx, "bank_transfer")
	require.Len(t, bank, 1)
	assert.Equal(t, "SA0380000000608010167519", bank[0].ExtraValue("iban"))

	stripe, _ := store.Select(ctx, "stripe")
	assert.Empty(t, stripe)
}
