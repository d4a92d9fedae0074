package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nypoclary/lectura-backend/internal/app"
	"github.com/nypoclary/lectura-backend/internal/logger"
	"github.com/nypoclary/lectura-backend/internal/pipeline"
	"github.com/nypoclary/lectura-backend/internal/records"
	"github.com/nypoclary/lectura-backend/internal/types"
)

type jobResponse struct {
	JobID   string          `json:"job_id"`
	Status  types.JobStatus `json:"status"`
	Running bool            `json:"running"`
	Message string          `json:"message,omitempty"`
}

type statusResponse struct {
	types.Job
	Running bool `json:"running"`
}

func newMux(a *app.App, log *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})

	mux.Handle("GET /metrics", a.Metrics.Handler())

	mux.HandleFunc("POST /jobs/{id}/process", func(w http.ResponseWriter, r *http.Request) {
		dispatch(w, r, a, log, a.Dispatcher.Submit)
	})

	mux.HandleFunc("POST /jobs/{id}/restart", func(w http.ResponseWriter, r *http.Request) {
		dispatch(w, r, a, log, a.Dispatcher.Restart)
	})

	mux.HandleFunc("GET /jobs/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		job, err := a.Jobs.Get(r.Context(), id)
		if err != nil {
			lookupError(w, r, log, err)
			return
		}
		writeJSON(w, log, http.StatusOK, statusResponse{Job: job, Running: a.Dispatcher.Running(id)})
	})

	return withRequestLog(mux, log)
}

// dispatch validates the job exists and hands it to the background dispatcher.
func dispatch(w http.ResponseWriter, r *http.Request, a *app.App, log *logger.Logger, start func(string) error) {
	reqLog := log.WithRequest(r)
	id := r.PathValue("id")

	job, err := a.Jobs.Get(r.Context(), id)
	if err != nil {
		lookupError(w, r, log, err)
		return
	}

	switch err := start(id); {
	case errors.Is(err, pipeline.ErrJobAlreadyRunning):
		writeJSON(w, log, http.StatusConflict, jobResponse{JobID: id, Status: job.Status, Running: true, Message: err.Error()})
		return
	case errors.Is(err, pipeline.ErrShuttingDown):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		reqLog.WithError(err).Error("dispatch failed")
		http.Error(w, "dispatch failed", http.StatusInternalServerError)
		return
	}

	reqLog.WithField("job_id", id).Info("job accepted")
	writeJSON(w, log, http.StatusAccepted, jobResponse{JobID: id, Status: job.Status, Running: true})
}

func lookupError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	if records.IsNotFound(err) {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	log.WithRequest(r).WithError(err).Error("job lookup failed")
	http.Error(w, "job lookup failed", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, log *logger.Logger, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.WithError(err).Error("failed to write response")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func withRequestLog(next http.Handler, log *logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.WithRequest(r).
			WithField("status", rec.status).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			Info("request handled")
	})
}
