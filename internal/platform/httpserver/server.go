package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	pollengine "pollhub/contexts/member-engagement/poll-engine"
	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
	polldomainerrors "pollhub/contexts/member-engagement/poll-engine/domain/errors"
	pollhttp "pollhub/contexts/member-engagement/poll-engine/transport/http"
	_ "pollhub/internal/platform/httpserver/docs"

	httpSwagger "github.com/swaggo/http-swagger"
)

type Server struct {
	mux     *http.ServeMux
	logger  *slog.Logger
	addr    string
	polls   pollengine.Module
	limiter *memberLimiter
	server  *http.Server
}

func New(
	polls pollengine.Module,
	limit RateLimit,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:     http.NewServeMux(),
		logger:  logger,
		addr:    addr,
		polls:   polls,
		limiter: newMemberLimiter(limit),
	}
	s.registerRoutes()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the routed mux, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /api/v1/polls", s.handleCreatePoll)
	s.mux.HandleFunc("GET /api/v1/polls", s.handleListPolls)
	s.mux.HandleFunc("GET /api/v1/polls/{poll_id}", s.handleGetPoll)
	s.mux.HandleFunc("PUT /api/v1/polls/{poll_id}", s.handleUpdatePoll)
	s.mux.HandleFunc("DELETE /api/v1/polls/{poll_id}", s.handleDeletePoll)
	s.mux.HandleFunc("POST /api/v1/polls/{poll_id}/close", s.handleClosePoll)
	s.mux.HandleFunc("POST /api/v1/polls/{poll_id}/cast", s.handleCastVote)
	s.mux.HandleFunc("POST /api/v1/polls/{poll_id}/options", s.handleAddOption)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// @Summary Create a poll
// @Tags polls
// @Accept json
// @Produce json
// @Param X-User-Id header string true "member id or email"
// @Param Idempotency-Key header string false "replay key"
// @Param request body pollhttp.CreatePollRequest true "poll"
// @Success 201 {object} pollhttp.TallyResponse
// @Failure 400 {object} pollhttp.ErrorResponse
// @Router /api/v1/polls [post]
func (s *Server) handleCreatePoll(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.resolveCaller(w, r)
	if !ok {
		return
	}
	var req pollhttp.CreatePollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writePollError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.polls.Handler.CreatePollHandler(r.Context(), caller, r.Header.Get("Idempotency-Key"), req)
	if err != nil {
		s.writePollDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

// @Summary List polls
// @Tags polls
// @Produce json
// @Param X-User-Id header string true "member id or email"
// @Param status query string false "active or closed"
// @Param page query int false "zero-based page"
// @Param size query int false "page size"
// @Success 200 {object} pollhttp.ListPollsResponse
// @Failure 400 {object} pollhttp.ErrorResponse
// @Router /api/v1/polls [get]
func (s *Server) handleListPolls(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.resolveCaller(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	page, err := optionalInt(query.Get("page"))
	if err != nil {
		writePollError(w, http.StatusBadRequest, "invalid_page", "page must be an integer")
		return
	}
	size, err := optionalInt(query.Get("size"))
	if err != nil {
		writePollError(w, http.StatusBadRequest, "invalid_size", "size must be an integer")
		return
	}
	resp, err := s.polls.Handler.ListPollsHandler(r.Context(), caller, query.Get("status"), page, size)
	if err != nil {
		s.writePollDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// @Summary Get a poll tally
// @Tags polls
// @Produce json
// @Param X-User-Id header string true "member id or email"
// @Param poll_id path string true "poll id"
// @Success 200 {object} pollhttp.TallyResponse
// @Failure 404 {object} pollhttp.ErrorResponse
// @Router /api/v1/polls/{poll_id} [get]
func (s *Server) handleGetPoll(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.resolveCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.polls.Handler.GetPollHandler(r.Context(), caller, r.PathValue("poll_id"))
	if err != nil {
		s.writePollDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// @Summary Edit poll header and options
// @Tags polls
// @Accept json
// @Produce json
// @Param X-User-Id header string true "member id or email"
// @Param poll_id path string true "poll id"
// @Param request body pollhttp.UpdatePollRequest true "changes"
// @Success 200 {object} pollhttp.TallyResponse
// @Failure 409 {object} pollhttp.ErrorResponse
// @Router /api/v1/polls/{poll_id} [put]
func (s *Server) handleUpdatePoll(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.resolveCaller(w, r)
	if !ok {
		return
	}
	var req pollhttp.UpdatePollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writePollError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.polls.Handler.UpdatePollHandler(r.Context(), caller, r.PathValue("poll_id"), req)
	if err != nil {
		s.writePollDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// @Summary Delete a poll
// @Tags polls
// @Produce json
// @Param X-User-Id header string true "member id or email"
// @Param poll_id path string true "poll id"
// @Success 200 {object} pollhttp.DeletePollResponse
// @Failure 403 {object} pollhttp.ErrorResponse
// @Router /api/v1/polls/{poll_id} [delete]
func (s *Server) handleDeletePoll(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.resolveCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.polls.Handler.DeletePollHandler(r.Context(), caller, r.PathValue("poll_id"))
	if err != nil {
		s.writePollDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// @Summary Close a poll
// @Tags polls
// @Produce json
// @Param X-User-Id header string true "member id or email"
// @Param poll_id path string true "poll id"
// @Success 200 {object} pollhttp.TallyResponse
// @Failure 409 {object} pollhttp.ErrorResponse
// @Router /api/v1/polls/{poll_id}/close [post]
func (s *Server) handleClosePoll(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.resolveCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.polls.Handler.ClosePollHandler(r.Context(), caller, r.PathValue("poll_id"))
	if err != nil {
		s.writePollDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// @Summary Cast or replace the caller's ballot
// @Tags polls
// @Accept json
// @Produce json
// @Param X-User-Id header string true "member id or email"
// @Param poll_id path string true "poll id"
// @Param request body pollhttp.CastVoteRequest true "selection"
// @Success 200 {object} pollhttp.TallyResponse
// @Failure 429 {object} pollhttp.ErrorResponse
// @Router /api/v1/polls/{poll_id}/cast [post]
func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.resolveCaller(w, r)
	if !ok || !s.allow(w, caller) {
		return
	}
	var req pollhttp.CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writePollError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.polls.Handler.CastVoteHandler(r.Context(), caller, r.PathValue("poll_id"), req)
	if err != nil {
		s.writePollDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// @Summary Add an option
// @Tags polls
// @Accept json
// @Produce json
// @Param X-User-Id header string true "member id or email"
// @Param poll_id path string true "poll id"
// @Param request body pollhttp.AddOptionRequest true "option"
// @Success 201 {object} pollhttp.OptionResponse
// @Failure 403 {object} pollhttp.ErrorResponse
// @Router /api/v1/polls/{poll_id}/options [post]
func (s *Server) handleAddOption(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.resolveCaller(w, r)
	if !ok || !s.allow(w, caller) {
		return
	}
	var req pollhttp.AddOptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writePollError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.polls.Handler.AddOptionHandler(r.Context(), caller, r.PathValue("poll_id"), req)
	if err != nil {
		s.writePollDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) resolveCaller(w http.ResponseWriter, r *http.Request) (entities.Member, bool) {
	identifier := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if identifier == "" {
		writePollError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return entities.Member{}, false
	}
	member, err := s.polls.Members.ResolveMember(r.Context(), identifier)
	if err != nil {
		s.writePollDomainError(w, err)
		return entities.Member{}, false
	}
	return member, true
}

func (s *Server) allow(w http.ResponseWriter, caller entities.Member) bool {
	if s.limiter.Allow(caller.MemberID) {
		return true
	}
	s.logger.Warn("member write rate limited",
		"event", "http_rate_limited",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"member_id", caller.MemberID,
	)
	writePollError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
	return false
}

func (s *Server) writePollDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, polldomainerrors.ErrMemberNotFound):
		writePollError(w, http.StatusUnauthorized, "unknown_member", err.Error())
	case errors.Is(err, polldomainerrors.ErrPollNotFound):
		writePollError(w, http.StatusNotFound, "poll_not_found", err.Error())
	case errors.Is(err, polldomainerrors.ErrOptionNotFound):
		writePollError(w, http.StatusNotFound, "option_not_found", err.Error())
	case errors.Is(err, polldomainerrors.ErrPollClosed):
		writePollError(w, http.StatusConflict, "poll_closed", err.Error())
	case errors.Is(err, polldomainerrors.ErrPollExpired):
		writePollError(w, http.StatusConflict, "poll_expired", err.Error())
	case errors.Is(err, polldomainerrors.ErrOptionHasVotes):
		writePollError(w, http.StatusConflict, "option_has_votes", err.Error())
	case errors.Is(err, polldomainerrors.ErrIdempotencyConflict),
		errors.Is(err, polldomainerrors.ErrConflict):
		writePollError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, polldomainerrors.ErrForbidden):
		writePollError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, polldomainerrors.ErrAddOptionNotAllowed):
		writePollError(w, http.StatusForbidden, "add_option_not_allowed", err.Error())
	case errors.Is(err, polldomainerrors.ErrSingleChoiceViolation):
		writePollError(w, http.StatusBadRequest, "single_choice_violation", err.Error())
	case errors.Is(err, polldomainerrors.ErrOptionMinCount),
		errors.Is(err, polldomainerrors.ErrOptionMaxCount):
		writePollError(w, http.StatusBadRequest, "option_count", err.Error())
	case errors.Is(err, polldomainerrors.ErrOptionDuplicate),
		errors.Is(err, polldomainerrors.ErrDuplicateDisplayOrder):
		writePollError(w, http.StatusBadRequest, "option_duplicate", err.Error())
	case errors.Is(err, polldomainerrors.ErrInvalidPollInput),
		errors.Is(err, polldomainerrors.ErrDeadlineInPast):
		writePollError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		s.logger.Error("poll request failed",
			"event", "http_poll_request_failed",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"error", err.Error(),
		)
		writePollError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writePollError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, pollhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func optionalInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
