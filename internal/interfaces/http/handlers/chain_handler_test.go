package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"chain-bridge.backend/internal/domain/entities"
	domainerrors "chain-bridge.backend/internal/domain/errors"
	"chain-bridge.backend/internal/infrastructure/blockchain"
)

type chainAdapterStub struct {
	infoFn   func(ctx context.Context) (*entities.ChainInfo, error)
	healthFn func(ctx context.Context) error
}

func (s *chainAdapterStub) ChainInfo(ctx context.Context) (*entities.ChainInfo, error) {
	if s.infoFn != nil {
		return s.infoFn(ctx)
	}
	return &entities.ChainInfo{ChainID: "eip155:84532", Name: "Base Sepolia"}, nil
}

func (s *chainAdapterStub) ValidateAddress(string) entities.AddressValidation {
	return entities.AddressValidation{Valid: true}
}

func (s *chainAdapterStub) GetBalance(context.Context, string, string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (s *chainAdapterStub) EstimateFee(context.Context, entities.TransferShape) (*entities.FeeEstimate, error) {
	return &entities.FeeEstimate{Model: entities.FeeModelLegacy}, nil
}

func (s *chainAdapterStub) SubmitTransfer(context.Context, string, *entities.TransferRequest) (*entities.TransferResult, error) {
	return nil, domainerrors.ErrInvalidInput
}

func (s *chainAdapterStub) GetTransferStatus(context.Context, string) (*entities.TransferStatus, error) {
	return &entities.TransferStatus{State: entities.TransferStatePending}, nil
}

func (s *chainAdapterStub) VerifyProof(context.Context, *entities.ProofVerificationRequest) (*entities.ProofVerification, error) {
	return &entities.ProofVerification{Valid: false}, nil
}

func (s *chainAdapterStub) HealthCheck(ctx context.Context) error {
	if s.healthFn != nil {
		return s.healthFn(ctx)
	}
	return nil
}

func TestChainHandler_ListChains(t *testing.T) {
	gin.SetMode(gin.TestMode)

	registry := blockchain.NewAdapterRegistry()
	h := NewChainHandler(registry)

	r := gin.New()
	r.GET("/chains", h.ListChains)

	req := httptest.NewRequest(http.MethodGet, "/chains", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "\"chains\":[]")

	registry.Register("eip155:84532", &chainAdapterStub{})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "eip155:84532")
}

func TestChainHandler_GetChainInfo(t *testing.T) {
	gin.SetMode(gin.TestMode)

	registry := blockchain.NewAdapterRegistry()
	registry.Register("eip155:84532", &chainAdapterStub{})
	registry.Register("eip155:1", &chainAdapterStub{
		infoFn: func(context.Context) (*entities.ChainInfo, error) {
			return nil, domainerrors.ErrChainUnreachable
		},
	})
	h := NewChainHandler(registry)

	r := gin.New()
	r.GET("/chains/:id/info", h.GetChainInfo)

	req := httptest.NewRequest(http.MethodGet, "/chains/eip155:84532/info", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Base Sepolia")

	req = httptest.NewRequest(http.MethodGet, "/chains/eip155:1/info", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadGateway, w.Code)
	require.Contains(t, w.Body.String(), "CHAIN_UNREACHABLE")

	req = httptest.NewRequest(http.MethodGet, "/chains/eip155:999/info", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestChainHandler_GetChainHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	registry := blockchain.NewAdapterRegistry()
	registry.Register("healthy", &chainAdapterStub{})
	registry.Register("down", &chainAdapterStub{
		healthFn: func(context.Context) error { return errors.New("connection refused") },
	})
	h := NewChainHandler(registry)

	r := gin.New()
	r.GET("/chains/:id/health", h.GetChainHealth)

	req := httptest.NewRequest(http.MethodGet, "/chains/healthy/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "\"status\":\"ok\"")

	req = httptest.NewRequest(http.MethodGet, "/chains/down/health", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), "\"status\":\"unreachable\"")

	req = httptest.NewRequest(http.MethodGet, "/chains/missing/health", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}
