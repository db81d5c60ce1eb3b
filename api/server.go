package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oscarprdev/nft-market-sync/gateway"
	"github.com/oscarprdev/nft-market-sync/logging"
	"github.com/oscarprdev/nft-market-sync/market"
	"github.com/oscarprdev/nft-market-sync/syncer"
)

// ListingService is the surface the HTTP server exposes. Implemented by
// syncer.Service.
type ListingService interface {
	Listings(ctx context.Context) ([]syncer.ListingItem, bool, error)
	Inspect() syncer.Snapshot
	Mint(ctx context.Context, uri, price string) (common.Hash, error)
	Connect(ctx context.Context) ([]common.Address, error)
	Disconnect(ctx context.Context)
	Accounts() []common.Address
	OnRefresh(listener syncer.RefreshListener)
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// ListenAddr is the HTTP listen address, e.g. ":8080".
	ListenAddr string

	// ReadTimeout bounds reading a request. Default: 10s.
	ReadTimeout time.Duration

	// WriteTimeout bounds writing a response. Does not apply to
	// hijacked websocket connections. Default: 30s.
	WriteTimeout time.Duration
}

// Server is the UI-facing HTTP surface: listings snapshot reads with
// cache state attached, mint submission, session management, and a
// websocket channel pushing refresh notices.
type Server struct {
	logger  logging.Logger
	config  ServerConfig
	service ListingService
	hub     *hub
	httpSrv *http.Server
}

// NewServer creates the HTTP server around service. Call Start to begin
// listening.
func NewServer(logger logging.Logger, config ServerConfig, service ListingService) *Server {
	if config.ListenAddr == "" {
		config.ListenAddr = ":8080"
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 10 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 30 * time.Second
	}

	s := &Server{
		logger:  logging.ForComponent(logger, logging.ComponentAPIServer),
		config:  config,
		service: service,
		hub:     newHub(logger),
	}
	service.OnRefresh(s.hub.broadcast)
	return s
}

// Handler returns the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /v1/listings", s.handleGetListings)
	mux.HandleFunc("POST /v1/listings", s.handleMint)
	mux.HandleFunc("GET /v1/account", s.handleGetAccount)
	mux.HandleFunc("POST /v1/account", s.handleConnect)
	mux.HandleFunc("DELETE /v1/account", s.handleDisconnect)
	mux.HandleFunc("GET /v1/ws", s.handleWS)
	return mux
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddr, err)
	}

	s.httpSrv = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		s.hub.closeAll()
	}()

	s.logger.Info().Str(logging.FieldListenAddr, s.config.ListenAddr).Msg("api server listening")

	if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// listingsResponse carries the snapshot plus the cache bookkeeping the
// UI needs to render staleness.
type listingsResponse struct {
	Data        []syncer.ListingItem `json:"data"`
	Status      string               `json:"status"`
	Version     uint64               `json:"version"`
	Stale       bool                 `json:"stale"`
	LastUpdated *time.Time           `json:"last_updated,omitempty"`
}

type mintRequest struct {
	URI   string `json:"uri"`
	Price string `json:"price"`
}

type mintResponse struct {
	TxHash string `json:"tx_hash"`
}

type accountResponse struct {
	Connected bool     `json:"connected"`
	Accounts  []string `json:"accounts"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetListings(w http.ResponseWriter, r *http.Request) {
	items, stale, err := s.service.Listings(r.Context())
	info := s.service.Inspect()

	if err != nil {
		s.logger.Warn().Err(err).Msg("listings load failed")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "listings unavailable"})
		return
	}

	if items == nil {
		items = []syncer.ListingItem{}
	}
	resp := listingsResponse{
		Data:    items,
		Status:  string(info.Status),
		Version: info.Version,
		Stale:   stale,
	}
	if !info.UpdatedAt.IsZero() {
		updated := info.UpdatedAt
		resp.LastUpdated = &updated
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.URI == "" || req.Price == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "uri and price are required"})
		return
	}

	hash, err := s.service.Mint(r.Context(), req.URI, req.Price)
	if err != nil {
		status, msg := mintErrorStatus(err)
		s.logger.Warn().Err(err).Str(logging.FieldURI, req.URI).Msg("mint rejected")
		writeJSON(w, status, errorResponse{Error: msg})
		return
	}

	s.logger.Info().
		Str(logging.FieldURI, req.URI).
		Str(logging.FieldTxHash, hash.Hex()).
		Msg("mint submitted")
	writeJSON(w, http.StatusAccepted, mintResponse{TxHash: hash.Hex()})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, accountsToResponse(s.service.Accounts()))
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.service.Connect(r.Context())
	if err != nil {
		status, msg := sessionErrorStatus(err)
		s.logger.Warn().Err(err).Msg("session connect failed")
		writeJSON(w, status, errorResponse{Error: msg})
		return
	}
	writeJSON(w, http.StatusOK, accountsToResponse(accounts))
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.service.Disconnect(r.Context())
	writeJSON(w, http.StatusOK, accountsToResponse(nil))
}

func accountsToResponse(accounts []common.Address) accountResponse {
	resp := accountResponse{
		Connected: len(accounts) > 0,
		Accounts:  make([]string, len(accounts)),
	}
	for i, a := range accounts {
		resp.Accounts[i] = a.Hex()
	}
	return resp
}

func mintErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, gateway.ErrNotConnected):
		return http.StatusUnauthorized, "wallet session not connected"
	case errors.Is(err, gateway.ErrWalletUnavailable):
		return http.StatusServiceUnavailable, "no wallet available"
	case errors.Is(err, gateway.ErrUserRejected):
		return http.StatusForbidden, "wallet authorization rejected"
	case errors.Is(err, market.ErrInvalidPrice):
		return http.StatusBadRequest, "invalid price"
	default:
		return http.StatusBadGateway, "mint submission failed"
	}
}

func sessionErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, gateway.ErrWalletUnavailable):
		return http.StatusServiceUnavailable, "no wallet available"
	case errors.Is(err, gateway.ErrUserRejected):
		return http.StatusForbidden, "wallet authorization rejected"
	default:
		return http.StatusBadGateway, "session connect failed"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
