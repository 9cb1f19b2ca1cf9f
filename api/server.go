package api

import (
	// Go Internal Packages
	"context"
	"net/http"
	"strconv"
	"time"

	// Local Packages
	errors "rwa-stream/errors"
	ledger "rwa-stream/ledger"
	models "rwa-stream/models"
	postgres "rwa-stream/repositories/postgres"

	// External Packages
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxLimit = 500

type Connection interface {
	State() ledger.State
	Endpoint() string
	ConnectWithRetry(ctx context.Context) error
}

type Volumes interface {
	Records() []models.IssuerVolumeRecord
	Record(address string) (models.IssuerVolumeRecord, bool)
	TotalVolume() decimal.Decimal
	Stats() models.VolumeStats
	Reset(ctx context.Context)
	ClearIssuer(ctx context.Context, address string) bool
}

type Assets interface {
	Assets() []models.AssetView
	Regional() []models.RegionView
	TotalMarketCap() decimal.Decimal
}

type RecentFeed interface {
	Recent(limit int) []models.ParsedTransaction
}

type Archive interface {
	FindRecent(ctx context.Context, limit int64) ([]models.MongoTransaction, error)
}

type History interface {
	History(ctx context.Context, issuer string, limit int) ([]postgres.SnapshotPoint, error)
}

// Server is the read API over the pipeline state. Archive, History and
// Metrics are optional.
type Server struct {
	Logger      *zap.Logger
	Connection  Connection
	Volumes     Volumes
	Assets      Assets
	Feed        RecentFeed
	Archive     Archive
	History     History
	Metrics     http.Handler
	RecentLimit int

	// BaseContext outlives requests; manual reconnects run on it.
	BaseContext context.Context
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.health)
	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/connection", s.connection)
		r.Post("/connection/retry", s.retryConnection)

		r.Route("/volumes", func(r chi.Router) {
			r.Get("/", s.listVolumes)
			r.Delete("/", s.resetVolumes)
			r.Get("/total", s.totalVolume)
			r.Get("/stats", s.volumeStats)
			r.Get("/{address}", s.issuerVolume)
			r.Delete("/{address}", s.clearIssuerVolume)
			r.Get("/{address}/history", s.issuerHistory)
		})

		r.Get("/assets", s.listAssets)
		r.Get("/regions", s.listRegions)
		r.Get("/transactions/recent", s.recentTransactions)
		r.Get("/transactions/archive", s.archivedTransactions)
	})
	return r
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("api listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.Logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"ledger": s.Connection.State().String(),
	})
}

type connectionView struct {
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	Endpoint  string `json:"endpoint,omitempty"`
}

func (s *Server) connectionView() connectionView {
	state := s.Connection.State()
	return connectionView{
		State:     state.String(),
		Connected: state == ledger.StateConnected,
		Endpoint:  s.Connection.Endpoint(),
	}
}

func (s *Server) connection(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, s.connectionView())
}

// retryConnection starts a new bounded retry in the background. It is the
// only way out of the error state.
func (s *Server) retryConnection(w http.ResponseWriter, _ *http.Request) {
	if s.Connection.State() == ledger.StateConnected {
		WriteJSON(w, http.StatusOK, s.connectionView())
		return
	}

	ctx := s.BaseContext
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		if err := s.Connection.ConnectWithRetry(ctx); err != nil {
			s.Logger.Warn("manual reconnect failed", zap.Error(err))
		}
	}()
	WriteJSON(w, http.StatusAccepted, s.connectionView())
}

func (s *Server) listVolumes(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, s.Volumes.Records())
}

func (s *Server) totalVolume(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]decimal.Decimal{"totalVolume": s.Volumes.TotalVolume()})
}

func (s *Server) volumeStats(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, s.Volumes.Stats())
}

func (s *Server) issuerVolume(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	rec, ok := s.Volumes.Record(address)
	if !ok {
		WriteError(w, errors.NotFoundErr("volume record", address))
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

func (s *Server) resetVolumes(w http.ResponseWriter, r *http.Request) {
	s.Volumes.Reset(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearIssuerVolume(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if !s.Volumes.ClearIssuer(r.Context(), address) {
		WriteError(w, errors.NotFoundErr("volume record", address))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) issuerHistory(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		WriteError(w, errors.E(errors.Unavailable, "snapshot history is disabled", nil))
		return
	}
	limit, err := parseLimit(r, 100)
	if err != nil {
		WriteError(w, err)
		return
	}
	points, err := s.History.History(r.Context(), chi.URLParam(r, "address"), limit)
	if err != nil {
		WriteError(w, errors.E(errors.Unavailable, "failed to read snapshot history", err))
		return
	}
	if points == nil {
		points = []postgres.SnapshotPoint{}
	}
	WriteJSON(w, http.StatusOK, points)
}

func (s *Server) listAssets(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"assets":         s.Assets.Assets(),
		"totalMarketCap": s.Assets.TotalMarketCap(),
	})
}

func (s *Server) listRegions(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, s.Assets.Regional())
}

func (s *Server) recentTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, s.RecentLimit)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, s.Feed.Recent(limit))
}

func (s *Server) archivedTransactions(w http.ResponseWriter, r *http.Request) {
	if s.Archive == nil {
		WriteError(w, errors.E(errors.Unavailable, "transaction archive is disabled", nil))
		return
	}
	limit, err := parseLimit(r, s.RecentLimit)
	if err != nil {
		WriteError(w, err)
		return
	}
	txs, err := s.Archive.FindRecent(r.Context(), int64(limit))
	if err != nil {
		WriteError(w, errors.E(errors.Unavailable, "failed to read transaction archive", err))
		return
	}
	if txs == nil {
		txs = []models.MongoTransaction{}
	}
	WriteJSON(w, http.StatusOK, txs)
}

func parseLimit(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		if fallback <= 0 {
			fallback = 50
		}
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > maxLimit {
		ve := errors.ValidationErrs()
		ve.Add("limit", "must be between 1 and 500")
		return 0, errors.InvalidParamsErr(ve.Err())
	}
	return limit, nil
}
