package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cuemby/burrow/pkg/appctx"
	"github.com/cuemby/burrow/pkg/apperrors"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/id57"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/router"
)

// handle runs the request lifecycle: BeforeRequest, favicon short-circuit,
// rate limit, tenant resolution, handle acquisition, frame install, routing,
// transaction bracket, response, AfterRequest.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	timer := metrics.NewTimer()
	metrics.RequestsInFlight.Inc()
	defer metrics.RequestsInFlight.Dec()

	requestID := id57.Generate()
	snapshot := map[string]any{
		"method":     r.Method,
		"path":       r.URL.Path,
		"request_id": requestID,
	}

	status := http.StatusOK
	tenant := ""
	s.dispatch(events.BeforeRequest, snapshot)
	defer func() {
		s.dispatch(events.AfterRequest, snapshot)
		metrics.RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(status), tenant).Inc()
		timer.ObserveDurationVec(metrics.RequestDuration, r.Method)
	}()

	if r.URL.Path == "/favicon.ico" {
		s.writeResponse(w, r, nil, http.StatusOK, "image/x-icon", nil)
		return
	}

	language := s.cfg.DefaultLanguage
	if s.catalogue != nil {
		language = s.catalogue.Negotiate(r.Header.Get("Accept-Language"))
	}

	if !s.limiter.Allow(r.URL.Path) {
		metrics.RequestsRateLimited.Inc()
		status = http.StatusTooManyRequests
		s.writeError(w, r, nil, language, apperrors.TooManyRequests("Rate limit exceeded"))
		return
	}

	tenant = ResolveTenant(r, s.cfg.DefaultTenant)
	snapshot["tenant"] = tenant
	ctx := r.Context()

	if err := s.runner.EnsureNamespace(ctx, tenant); err != nil {
		log.WithTenant(tenant).Error().Err(err).Msg("Failed to ensure namespace")
		status = http.StatusServiceUnavailable
		s.writeError(w, r, nil, language, apperrors.ServiceUnavailable("tenant unavailable"))
		return
	}

	handle, err := s.pool.Acquire(ctx, tenant)
	if err != nil {
		log.WithTenant(tenant).Error().Err(err).Msg("Failed to acquire database handle")
		status = http.StatusServiceUnavailable
		s.writeError(w, r, nil, language, apperrors.ServiceUnavailable("database unavailable"))
		return
	}
	defer func() {
		if err := handle.Release(ctx); err != nil {
			log.WithTenant(tenant).Warn().Err(err).Msg("Failed to release handle")
		}
	}()

	frame := &appctx.Frame{
		Tenant:    tenant,
		Handle:    handle,
		Bus:       s.bus,
		Request:   r,
		RequestID: requestID,
		Language:  language,
	}
	ctx = appctx.With(ctx, frame)

	if r.Method == http.MethodOptions {
		s.writeResponse(w, r, frame, http.StatusNoContent, "text/plain", nil)
		status = http.StatusNoContent
		return
	}

	handler, params := s.routes.Resolve(r.Method, r.URL.Path)
	if handler == nil {
		status = http.StatusNotFound
		s.writeError(w, r, frame, language, apperrors.ResourceNotFound("Not Found"))
		return
	}

	if err := handle.Begin(ctx); err != nil {
		status = http.StatusInternalServerError
		s.writeError(w, r, frame, language, apperrors.InternalServerError("failed to begin transaction"))
		return
	}

	body, err := invoke(ctx, handler, r, params)
	if err != nil {
		if rbErr := handle.Rollback(ctx); rbErr != nil {
			log.WithTenant(tenant).Error().Err(rbErr).Msg("Rollback failed")
		}
		status = apperrors.HTTPStatus(err)
		if status == http.StatusInternalServerError {
			log.WithRequestID(requestID).Error().Err(err).
				Str("method", r.Method).Str("path", r.URL.Path).Str("tenant", tenant).
				Msg("Unhandled failure")
			s.dispatchUnhandled(err, snapshot)
		}
		s.writeError(w, r, frame, language, err)
		return
	}

	// Commit before the body leaves the process; a failed commit must not
	// produce a response that claims success.
	if err := handle.Commit(ctx); err != nil {
		status = http.StatusInternalServerError
		s.writeError(w, r, frame, language, apperrors.InternalServerError("failed to commit transaction"))
		return
	}

	s.writeResponse(w, r, frame, http.StatusOK, contentTypeFor(body), body)
}

// invoke calls the handler, converting panics into internal errors so the
// transaction bracket and the response path always run.
func invoke(ctx context.Context, handler router.Handler, r *http.Request, params router.Params) (body []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = apperrors.InternalServerError(fmt.Sprintf("panic: %v", p))
		}
	}()
	return handler(ctx, r, params)
}

func (s *Server) dispatch(name string, data map[string]any) {
	event, err := events.New(name, data)
	if err != nil {
		log.WithComponent("server").Warn().Err(err).Str("event", name).Msg("Failed to build event")
		return
	}
	s.bus.Dispatch(event)
}

func (s *Server) dispatchUnhandled(cause error, snapshot map[string]any) {
	data := map[string]any{"error": cause.Error(), "request": snapshot}
	s.dispatch(events.UnhandledException, data)
}

// writeError renders the failure body: validation failures as a structured
// list, everything else as a detail message. Messages are run through the
// translator; non-key messages pass through unchanged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, frame *appctx.Frame, language string, err error) {
	status := apperrors.HTTPStatus(err)

	var payload any
	var failure *apperrors.ValidationFailure
	if errors.As(err, &failure) {
		translated := make([]apperrors.FieldError, len(failure.Errors))
		for i, fe := range failure.Errors {
			translated[i] = apperrors.FieldError{Field: fe.Field, Message: s.translate(language, fe.Message)}
		}
		payload = map[string]any{"validation_errors": translated}
	} else {
		payload = map[string]string{"detail": s.translate(language, err.Error())}
	}

	body, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		body = []byte(`{"detail": "Internal Server Error"}`)
		status = http.StatusInternalServerError
	}
	s.writeResponse(w, r, frame, status, "application/json", body)
}

func (s *Server) translate(language, message string) string {
	if s.catalogue == nil {
		return message
	}
	return s.catalogue.TranslateOr(language, message)
}
