// Package httpapi mirrors the presenter surface over HTTP with bearer tokens.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/learnsphere/moderation/internal/core"
	"github.com/learnsphere/moderation/internal/model"
	"github.com/learnsphere/moderation/internal/presenter"
)

const (
	contentTypeJSON        = "Content-Type"
	applicationJSON        = "application/json"
	failedToEncodeResponse = "failed to encode response"
	bearerPrefix           = "Bearer "
	maxBodyBytes           = 1 << 20
)

// Server serves the HTTP mirror of one core.
type Server struct {
	core         *core.Context
	issuer       *Issuer
	demoPassword string
	logger       *slog.Logger
}

// NewServer creates a server. Every account logs in with demoPassword.
func NewServer(c *core.Context, issuer *Issuer, demoPassword string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{core: c, issuer: issuer, demoPassword: demoPassword, logger: logger}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.HealthCheck)
	mux.HandleFunc("POST /api/auth/login", s.Login)

	mux.HandleFunc("GET /api/courses", s.authed(s.ListCourses))
	mux.HandleFunc("GET /api/courses/pending", s.authed(s.ListPendingCourses))
	mux.HandleFunc("GET /api/courses/{id}", s.authed(s.GetCourse))
	mux.HandleFunc("POST /api/courses", s.authed(s.CreateCourse))
	mux.HandleFunc("POST /api/courses/{id}/approve", s.authed(s.ApproveCourse))
	mux.HandleFunc("POST /api/courses/{id}/reject", s.authed(s.RejectCourse))
	mux.HandleFunc("DELETE /api/courses/{id}", s.authed(s.DeleteCourse))
	mux.HandleFunc("POST /api/courses/{id}/enrollments", s.authed(s.RequestEnrollment))
	mux.HandleFunc("POST /api/enrollments/{id}/approve", s.authed(s.ApproveEnrollment))
	mux.HandleFunc("POST /api/enrollments/{id}/reject", s.authed(s.RejectEnrollment))
	mux.HandleFunc("GET /api/notifications", s.authed(s.ListNotifications))

	return mux
}

type actorHandler func(w http.ResponseWriter, r *http.Request, p *presenter.Presenter)

// authed resolves the bearer token to a current user record. A token whose
// user was deleted no longer authenticates.
func (s *Server) authed(next actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing bearer token"})
			return
		}

		claims, err := s.issuer.Verify(strings.TrimPrefix(header, bearerPrefix))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid token"})
			return
		}

		var (
			actor     model.Actor
			lookupErr error
		)
		s.core.Exclusive(func() {
			actor, lookupErr = s.core.Catalog.ActorByID(r.Context(), claims.Subject)
		})
		if lookupErr != nil {
			if model.KindOf(lookupErr) == model.KindNotFound {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unknown user"})
				return
			}
			writeFailure(w, lookupErr)
			return
		}

		next(w, r, s.core.Presenter(actor, presenter.WithNotifier(presenter.LogNotifier{Logger: s.logger})))
	}
}

// run executes fn as the core's single writer with the core's origin on ctx.
func (s *Server) run(r *http.Request, fn func(ctx context.Context)) {
	ctx := s.core.WithOrigin(r.Context())
	s.core.Exclusive(func() { fn(ctx) })
}

type errorBody struct {
	Error string `json:"error"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	Actor model.Actor `json:"actor"`
}

// HealthCheck handles GET /api/health.
func (*Server) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Login handles POST /api/auth/login.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON"})
		return
	}

	var (
		actor model.Actor
		err   error
	)
	s.run(r, func(ctx context.Context) {
		actor, err = s.core.Catalog.ActorByEmail(ctx, req.Email)
	})
	if err != nil && model.KindOf(err) != model.KindNotFound {
		writeFailure(w, err)
		return
	}
	if err != nil || req.Password != s.demoPassword {
		s.logger.Info("login rejected", slog.String("email", req.Email))
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid credentials"})
		return
	}
	if !actor.IsActive() {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "account suspended"})
		return
	}

	token, err := s.issuer.Issue(actor)
	if err != nil {
		s.logger.Error("failed to issue token", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to issue token"})
		return
	}

	s.logger.Info("login", slog.String("actor", actor.ID), slog.String("role", string(actor.Role)))
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Actor: actor})
}

// ListCourses handles GET /api/courses.
func (s *Server) ListCourses(w http.ResponseWriter, r *http.Request, p *presenter.Presenter) {
	var res presenter.Result[[]model.Course]
	s.run(r, func(ctx context.Context) {
		seq, err := p.Query().Courses(ctx)
		res = collect(seq, err)
	})
	writeResult(w, http.StatusOK, res)
}

// ListPendingCourses handles GET /api/courses/pending.
func (s *Server) ListPendingCourses(w http.ResponseWriter, r *http.Request, p *presenter.Presenter) {
	var res presenter.Result[[]model.Course]
	s.run(r, func(ctx context.Context) {
		seq, err := p.Query().PendingCourses(ctx)
		res = collect(seq, err)
	})
	writeResult(w, http.StatusOK, res)
}

// GetCourse handles GET /api/courses/{id}.
func (s *Server) GetCourse(w http.ResponseWriter, r *http.Request, p *presenter.Presenter) {
	var res presenter.Result[model.Course]
	s.run(r, func(ctx context.Context) {
		course, err := p.Query().Course(ctx, r.PathValue("id"))
		res = presenter.ResultOf(course, err)
	})
	writeResult(w, http.StatusOK, res)
}

// CreateCourse handles POST /api/courses.
func (s *Server) CreateCourse(w http.ResponseWriter, r *http.Request, p *presenter.Presenter) {
	var fields model.CourseFields
	if err := decode(w, r, &fields); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON"})
		return
	}

	var res presenter.Result[model.Course]
	s.run(r, func(ctx context.Context) {
		res = p.Command().CreateCourse(ctx, fields)
	})
	writeResult(w, http.StatusCreated, res)
}

// ApproveCourse handles POST /api/courses/{id}/approve.
func (s *Server) ApproveCourse(w http.ResponseWriter, r *http.Request, p *presenter.Presenter) {
	var res presenter.Result[model.Course]
	s.run(r, func(ctx context.Context) {
		res = p.Command().ApproveCourse(ctx, r.PathValue("id"))
	})
	writeResult(w, http.StatusOK, res)
}

// RejectCourse handles POST /api/courses/{id}/reject.
func (s *Server) RejectCourse(w http.ResponseWriter, r *http.Request, p *presenter.Presenter) {
	var res presenter.Result[model.Course]
	s.run(r, func(ctx context.Context) {
		res = p.Command().RejectCourse(ctx, r.PathValue("id"))
	})
	writeResult(w, http.StatusOK, res)
}

// DeleteCourse handles DELETE /api/courses/{id}.
func (s *Server) DeleteCourse(w http.ResponseWriter, r *http.Request, p *presenter.Presenter) {
	var res presenter.Result[presenter.Done]
	s.run(r, func(ctx context.Context) {
		res = p.Command().Delete(ctx, model.EntityRef{Kind: model.KindCourse, ID: r.PathValue("id")})
	})
	writeResult(w, http.StatusOK, res)
}

// RequestEnrollment handles POST /api/courses/{id}/enrollments.
func (s *Server) RequestEnrollment(w http.ResponseWriter, r *http.Request, p *presenter.Presenter) {
	var res presenter.Result[model.EnrollmentRequest]
	s.run(r, func(ctx context.Context) {
		res = p.Command().RequestEnrollment(ctx, r.PathValue("id"))
	})
	writeResult(w, http.StatusCreated, res)
}

// ApproveEnrollment handles POST /api/enrollments/{id}/approve.
func (s *Server) ApproveEnrollment(w http.ResponseWriter, r *http.Request, p *presenter.Presenter) {
	var res presenter.Result[model.EnrollmentRequest]
	s.run(r, func(ctx context.Context) {
		res = p.Command().ApproveEnrollment(ctx, r.PathValue("id"))
	})
	writeResult(w, http.StatusOK, res)
}

// RejectEnrollment handles POST /api/enrollments/{id}/reject.
func (s *Server) RejectEnrollment(w http.ResponseWriter, r *http.Request, p *presenter.Presenter) {
	var res presenter.Result[model.EnrollmentRequest]
	s.run(r, func(ctx context.Context) {
		res = p.Command().RejectEnrollment(ctx, r.PathValue("id"))
	})
	writeResult(w, http.StatusOK, res)
}

// ListNotifications handles GET /api/notifications.
func (s *Server) ListNotifications(w http.ResponseWriter, r *http.Request, p *presenter.Presenter) {
	var res presenter.Result[[]model.Notification]
	s.run(r, func(ctx context.Context) {
		seq, err := p.Query().Notifications(ctx)
		res = collect(seq, err)
	})
	writeResult(w, http.StatusOK, res)
}

// StatusOf maps a failure kind to an HTTP status.
func StatusOf(kind model.ErrorKind) int {
	switch kind {
	case model.KindForbidden:
		return http.StatusForbidden
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindValidationFailed:
		return http.StatusUnprocessableEntity
	case model.KindIllegalTransition, model.KindAlreadyPending, model.KindAlreadyRated, model.KindCapacityExceeded:
		return http.StatusConflict
	case model.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func collect[T any](seq iter.Seq[T], err error) presenter.Result[[]T] {
	if err != nil {
		return presenter.ResultOf[[]T](nil, err)
	}

	items := slices.Collect(seq)
	if items == nil {
		items = []T{}
	}

	return presenter.ResultOf(items, nil)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON body")
	}

	return nil
}

func writeResult[T any](w http.ResponseWriter, success int, res presenter.Result[T]) {
	status := success
	if res.Failure != nil {
		status = StatusOf(res.Failure.Kind)
	}
	writeJSON(w, status, res)
}

func writeFailure(w http.ResponseWriter, err error) {
	writeResult(w, http.StatusOK, presenter.ResultOf(struct{}{}, err))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set(contentTypeJSON, applicationJSON)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error(failedToEncodeResponse, slog.String("error", err.Error()))
	}
}
