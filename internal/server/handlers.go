package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ggonzalez94/edufi-cli/internal/assistant"
	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
	"github.com/ggonzalez94/edufi-cli/internal/execution"
	"github.com/ggonzalez94/edufi-cli/internal/model"
)

const maxIntentBody = 16 << 10

type intentRequest struct {
	Text        string `json:"text"`
	Sender      string `json:"sender,omitempty"`
	SlippageBps int64  `json:"slippage_bps,omitempty"`
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, r, s.svc.Tokens(), model.CacheStatus{Status: "bypass"}, nil)
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	routes, err := s.svc.Routes(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeData(w, r, routes, model.CacheStatus{Status: "bypass"}, nil)
}

// Quotes are never cached: they are tied to the block they were read at.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	quote, err := s.svc.Quote(r.Context(), assistant.QuoteRequest{
		From:      q.Get("from"),
		To:        q.Get("to"),
		Amount:    q.Get("amount"),
		TradeType: q.Get("trade_type"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeData(w, r, quote, model.CacheStatus{Status: "bypass"}, nil)
}

func (s *Server) handleBridgeEstimate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	est, err := s.svc.EstimateBridge(r.Context(), q.Get("direction"), q.Get("amount"), q.Get("recipient"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeData(w, r, est, model.CacheStatus{Status: "bypass"}, nil)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	token := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("token")))
	s.cached(w, r, cacheKey("price", token), s.config.MarketTTL, func(ctx context.Context) (any, error) {
		return s.svc.Price(ctx, token)
	})
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	s.cached(w, r, cacheKey("network", ""), s.config.ExplorerTTL, func(ctx context.Context) (any, error) {
		return s.svc.NetworkStatus(ctx)
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	address := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("address")))
	s.cached(w, r, cacheKey("balance", address), s.config.ExplorerTTL, func(ctx context.Context) (any, error) {
		return s.svc.Balance(ctx, address)
	})
}

// handleIntent answers a chat message. Plans are persisted but never signed
// here; execution stays with the CLI that holds the key.
func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIntentBody+1))
	if err != nil {
		s.writeError(w, r, clierr.Wrap(clierr.CodeUsage, "read request body", err))
		return
	}
	if len(body) > maxIntentBody {
		s.writeError(w, r, clierr.New(clierr.CodeUsage, "request body too large"))
		return
	}
	var req intentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, clierr.Wrap(clierr.CodeUsage, "decode intent request", err))
		return
	}
	reply, err := s.svc.Ask(r.Context(), req.Text, assistant.HandleOptions{
		Sender:      req.Sender,
		SlippageBps: req.SlippageBps,
		Simulate:    true,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeData(w, r, reply, model.CacheStatus{Status: "bypass"}, nil)
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := s.svc.Actions(execution.ListQuery{
		Status:     q.Get("status"),
		IntentType: q.Get("intent"),
		Limit:      parseLimit(q.Get("limit"), 20),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeData(w, r, items, model.CacheStatus{Status: "bypass"}, nil)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	action, err := s.svc.Action(chi.URLParam(r, "actionID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeData(w, r, action, model.CacheStatus{Status: "bypass"}, nil)
}

type fetchFn func(ctx context.Context) (any, error)

// cached serves a fresh entry when present, otherwise fetches. A stale entry
// is served only when the source is down or rate limited and the entry is
// still inside the max-stale window.
func (s *Server) cached(w http.ResponseWriter, r *http.Request, key string, ttl time.Duration, fetch fetchFn) {
	var (
		stale      json.RawMessage
		staleState model.CacheStatus
	)
	if s.cache != nil {
		res, err := s.cache.Get(key, s.config.MaxStale)
		if err == nil && res.Hit && !res.TooStale {
			status := model.CacheStatus{Status: "hit", AgeMS: res.Age.Milliseconds(), Stale: res.Stale}
			if !res.Stale {
				s.writeData(w, r, json.RawMessage(res.Value), status, nil)
				return
			}
			stale, staleState = res.Value, status
		}
	}

	data, err := fetch(r.Context())
	if err != nil {
		if stale != nil && staleFallbackAllowed(err) {
			s.writeData(w, r, stale, staleState, []string{"source unavailable; serving stale data within max-stale budget"})
			return
		}
		s.writeError(w, r, err)
		return
	}

	status := model.CacheStatus{Status: "miss"}
	if s.cache != nil {
		if payload, err := json.Marshal(data); err == nil {
			if err := s.cache.Set(key, payload, ttl); err != nil {
				log.Warn().Err(err).Msg("cache write failed")
			} else {
				status.Status = "write"
			}
		}
	}
	s.writeData(w, r, data, status, nil)
}

func staleFallbackAllowed(err error) bool {
	return clierr.Is(err, clierr.CodeUnavailable) || clierr.Is(err, clierr.CodeRateLimited)
}

func (s *Server) writeData(w http.ResponseWriter, r *http.Request, data any, cacheStatus model.CacheStatus, warnings []string) {
	writeJSON(w, http.StatusOK, model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Warnings: warnings,
		Meta:     s.meta(r, cacheStatus),
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := clierr.CodeInternal
	message := err.Error()
	if typed, ok := clierr.As(err); ok {
		code = typed.Code
	}
	kind := clierr.Kind(code)
	status := httpStatus(code)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Error:   &model.ErrorBody{Code: int(code), Type: kind, Kind: kind, Message: message},
		Meta:    s.meta(r, model.CacheStatus{Status: "bypass"}),
	})
}

func (s *Server) meta(r *http.Request, cacheStatus model.CacheStatus) model.EnvelopeMeta {
	return model.EnvelopeMeta{
		RequestID: middleware.GetReqID(r.Context()),
		Timestamp: s.now().UTC(),
		Command:   r.Method + " " + r.URL.Path,
		Cache:     cacheStatus,
	}
}

func httpStatus(code clierr.Code) int {
	switch code {
	case clierr.CodeUsage, clierr.CodeInvalidToken:
		return http.StatusBadRequest
	case clierr.CodeAuth:
		return http.StatusUnauthorized
	case clierr.CodeRateLimited:
		return http.StatusTooManyRequests
	case clierr.CodeUnavailable, clierr.CodeStale:
		return http.StatusServiceUnavailable
	case clierr.CodeUnsupported, clierr.CodeNoRoute, clierr.CodeNoLiquidity, clierr.CodeInsufficientBalance:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("write response")
	}
}

func cacheKey(kind, arg string) string {
	sum := sha256.Sum256([]byte("server|" + kind + "|" + arg))
	return hex.EncodeToString(sum[:])
}

func parseLimit(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
