package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"frontdesk/answers"
	"frontdesk/auth"
	"frontdesk/db"
	"frontdesk/helprequest"
	"frontdesk/resolution"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type ctxKey string

const (
	ctxKeyUserID ctxKey = "supervisor_id"
	ctxKeyRole   ctxKey = "role"
)

const maxBodyBytes = 1 << 20

// escalationReply is what the agent tells a caller whose question went to a supervisor.
const escalationReply = "Let me check with my supervisor and get back to you."

type resolver interface {
	Resolve(ctx context.Context, call resolution.Call) (resolution.Outcome, error)
}

type helpRequestService interface {
	Get(ctx context.Context, id string) (helprequest.HelpRequest, error)
	ListPending(ctx context.Context) ([]helprequest.HelpRequest, error)
	ListAll(ctx context.Context) ([]helprequest.HelpRequest, error)
	Respond(ctx context.Context, params helprequest.RespondParams) (helprequest.Resolution, error)
}

type knowledgeService interface {
	ListAll(ctx context.Context) ([]answers.Entry, error)
	Update(ctx context.Context, params answers.UpdateParams) (answers.Entry, error)
	Delete(ctx context.Context, id string) error
}

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.Supervisor, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (string, auth.Role, error)
	GetSupervisor(ctx context.Context, id string) (*auth.Supervisor, error)
}

// Server exposes the caller, supervisor and knowledge surfaces over HTTP.
type Server struct {
	resolver  resolver
	requests  helpRequestService
	knowledge knowledgeService
	auth      authService
	ping      func(ctx context.Context) error
	logger    *zap.Logger
	validate  *validator.Validate
}

func NewServer(res resolver, requests helpRequestService, knowledge knowledgeService, authSvc authService, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		resolver:  res,
		requests:  requests,
		knowledge: knowledge,
		auth:      authSvc,
		logger:    logger,
		validate:  validator.New(),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/calls/questions", s.handleAsk)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/auth/me", s.handleMe)
			r.Get("/help-requests", s.handleListHelpRequests)
			r.Get("/help-requests/{id}", s.handleGetHelpRequest)
			r.Post("/help-requests/{id}/response", s.handleRespond)

			r.Get("/knowledge", s.handleListKnowledge)
			r.Put("/knowledge/{id}", s.handleUpdateKnowledge)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(auth.RoleAdmin))
				r.Post("/auth/register", s.handleRegister)
				r.Delete("/knowledge/{id}", s.handleDeleteKnowledge)
			})
		})
	})
	return r
}

// DTOs

type askRequest struct {
	CallerName  string `json:"callerName" validate:"required"`
	CallerPhone string `json:"callerPhone" validate:"required"`
	Question    string `json:"question" validate:"required"`
}

type askResponse struct {
	Source      string               `json:"source"`
	Answer      string               `json:"answer"`
	RequestID   string               `json:"requestId,omitempty"`
	HelpRequest *helpRequestResponse `json:"helpRequest,omitempty"`
}

type helpRequestResponse struct {
	ID                 string  `json:"id"`
	CallerName         string  `json:"callerName"`
	CallerPhone        string  `json:"callerPhone"`
	Question           string  `json:"question"`
	Status             string  `json:"status"`
	SupervisorResponse *string `json:"supervisorResponse,omitempty"`
	CreatedAt          string  `json:"createdAt"`
	RespondedAt        *string `json:"respondedAt,omitempty"`
	ExpiresAt          string  `json:"expiresAt"`
	LearnedAt          *string `json:"learnedAt,omitempty"`
}

type respondRequest struct {
	Response string `json:"response" validate:"required"`
}

type respondResponse struct {
	HelpRequest helpRequestResponse `json:"helpRequest"`
	Knowledge   knowledgeResponse   `json:"knowledge"`
}

type knowledgeResponse struct {
	ID              string  `json:"id"`
	Question        string  `json:"question"`
	Answer          string  `json:"answer"`
	SourceRequestID *string `json:"sourceRequestId,omitempty"`
	CreatedAt       string  `json:"createdAt"`
	UpdatedAt       string  `json:"updatedAt"`
}

type updateKnowledgeRequest struct {
	Question string `json:"question" validate:"required"`
	Answer   string `json:"answer" validate:"required"`
}

type loginResponse struct {
	Token      string             `json:"token"`
	Supervisor supervisorResponse `json:"supervisor"`
}

type supervisorResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`
}

func toHelpRequestResponse(req helprequest.HelpRequest) helpRequestResponse {
	out := helpRequestResponse{
		ID:                 req.ID,
		CallerName:         req.CallerName,
		CallerPhone:        req.CallerPhone,
		Question:           req.Question,
		Status:             string(req.Status),
		SupervisorResponse: req.SupervisorResponse,
		CreatedAt:          req.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt:          req.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if req.RespondedAt != nil {
		at := req.RespondedAt.UTC().Format(time.RFC3339)
		out.RespondedAt = &at
	}
	if req.LearnedAt != nil {
		at := req.LearnedAt.UTC().Format(time.RFC3339)
		out.LearnedAt = &at
	}
	return out
}

func toKnowledgeResponse(e answers.Entry) knowledgeResponse {
	return knowledgeResponse{
		ID:              e.ID,
		Question:        e.Question,
		Answer:          e.Answer,
		SourceRequestID: e.SourceRequestID,
		CreatedAt:       e.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toSupervisorResponse(sup auth.Supervisor) supervisorResponse {
	return supervisorResponse{ID: sup.ID, Email: sup.Email, FullName: sup.FullName, Role: string(sup.Role)}
}

// Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !s.decode(w, r, &req) {
		return
	}

	out, err := s.resolver.Resolve(r.Context(), resolution.Call{
		CallerName:  req.CallerName,
		CallerPhone: req.CallerPhone,
		Question:    req.Question,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := askResponse{Source: string(out.Source), Answer: out.Answer}
	if out.Escalated() && out.Request != nil {
		hr := toHelpRequestResponse(*out.Request)
		resp.RequestID = hr.ID
		resp.HelpRequest = &hr
		resp.Answer = escalationReply
		writeJSON(w, http.StatusAccepted, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListHelpRequests(w http.ResponseWriter, r *http.Request) {
	var (
		items []helprequest.HelpRequest
		err   error
	)
	switch status := strings.TrimSpace(r.URL.Query().Get("status")); status {
	case "", string(helprequest.StatusPending):
		items, err = s.requests.ListPending(r.Context())
	case "all":
		items, err = s.requests.ListAll(r.Context())
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status filter %q", status))
		return
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	out := make([]helpRequestResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toHelpRequestResponse(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "total": len(out)})
}

func (s *Server) handleGetHelpRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.requests.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toHelpRequestResponse(req))
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	var body respondRequest
	if !s.decode(w, r, &body) {
		return
	}

	res, err := s.requests.Respond(r.Context(), helprequest.RespondParams{
		RequestID: chi.URLParam(r, "id"),
		Response:  body.Response,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.logger.Info("supervisor responded",
		zap.String("request_id", res.Request.ID),
		zap.String("supervisor_id", userIDFrom(r.Context())))
	writeJSON(w, http.StatusOK, respondResponse{
		HelpRequest: toHelpRequestResponse(res.Request),
		Knowledge:   toKnowledgeResponse(res.Entry),
	})
}

func (s *Server) handleListKnowledge(w http.ResponseWriter, r *http.Request) {
	entries, err := s.knowledge.ListAll(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := make([]knowledgeResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toKnowledgeResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "total": len(out)})
}

func (s *Server) handleUpdateKnowledge(w http.ResponseWriter, r *http.Request) {
	var body updateKnowledgeRequest
	if !s.decode(w, r, &body) {
		return
	}
	entry, err := s.knowledge.Update(r.Context(), answers.UpdateParams{
		ID:       chi.URLParam(r, "id"),
		Question: body.Question,
		Answer:   body.Answer,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toKnowledgeResponse(entry))
}

func (s *Server) handleDeleteKnowledge(w http.ResponseWriter, r *http.Request) {
	if err := s.knowledge.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !s.decode(w, r, &req) {
		return
	}
	sup, err := s.auth.Register(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSupervisorResponse(*sup))
}

// handleMe returns the account behind the bearer token. A token for an
// account that no longer exists is a 404.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sup, err := s.auth.GetSupervisor(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSupervisorResponse(*sup))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.auth.Login(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: res.Token, Supervisor: toSupervisorResponse(res.Supervisor)})
}

// Middleware

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, role, err := s.auth.VerifyToken(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyRole, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got, _ := r.Context().Value(ctxKeyRole).(auth.Role); got != role {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyUserID).(string)
	return id
}

// Helpers

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, helprequest.ErrValidation),
		errors.Is(err, answers.ErrValidation),
		errors.Is(err, auth.ErrValidation),
		errors.Is(err, auth.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, helprequest.ErrNotFound),
		errors.Is(err, answers.ErrNotFound),
		errors.Is(err, auth.ErrSupervisorNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, helprequest.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "help request is no longer pending")
	case errors.Is(err, auth.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	default:
		s.logger.Error("request failed", zap.Error(err), zap.Bool("store_error", db.IsStoreError(err)))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
