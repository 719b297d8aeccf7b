package control

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/leandrodaf/midicc/internal/logger"
	"github.com/leandrodaf/midicc/sdk/contracts"
)

// DeviceSource is optionally implemented by the backend to serve /v1/devices.
type DeviceSource interface {
	Devices(ctx context.Context) (contracts.DeviceList, error)
}

// Server serves a contracts.Backend over HTTP.
type Server struct {
	backend contracts.Backend
	logger  contracts.Logger
	mux     *http.ServeMux
}

// NewServer builds the handler. A nil logger discards.
func NewServer(backend contracts.Backend, log contracts.Logger) *Server {
	if log == nil {
		log = logger.NewNopLogger()
	}
	s := &Server{backend: backend, logger: log, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET "+pathSettings, s.handleGetSettings)
	s.mux.HandleFunc("POST "+pathSettings, s.handleSetSettings)
	s.mux.HandleFunc("GET "+pathError, s.handleGetError)
	s.mux.HandleFunc("POST "+pathRestart, s.handleRestart)
	s.mux.HandleFunc("GET "+pathDevices, s.handleDevices)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.Debug("control request",
		s.logger.Field().String("method", r.Method),
		s.logger.Field().String("path", r.URL.Path),
		s.logger.Field().Duration("elapsed", time.Since(start)))
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	view, err := s.backend.GetSettings(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newSettingsResponse(view))
}

func (s *Server) handleSetSettings(w http.ResponseWriter, r *http.Request) {
	var update contracts.SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	st, err := s.backend.SetSettings(r.Context(), update)
	if err != nil {
		if ve, ok := contracts.IsValidation(err); ok {
			msg := ve.Error()
			s.writeJSON(w, http.StatusUnprocessableEntity, statusResponse{Error: &msg, Field: ve.Field, Reason: ve.Reason})
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newStatusResponse(st))
}

func (s *Server) handleGetError(w http.ResponseWriter, r *http.Request) {
	st, err := s.backend.GetError(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newStatusResponse(st))
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	st, err := s.backend.AttemptRestart(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newStatusResponse(st))
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	src, ok := s.backend.(DeviceSource)
	if !ok {
		view, err := s.backend.GetSettings(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		s.writeJSON(w, http.StatusOK, devicesResponse{MIDIDevices: newSettingsResponse(view).MIDIDevices})
		return
	}
	devices, err := src.Devices(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if devices == nil {
		devices = contracts.DeviceList{}
	}
	s.writeJSON(w, http.StatusOK, devicesResponse{MIDIDevices: devices})
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	s.logger.Warn("control request failed", s.logger.Field().Int("status", code), s.logger.Field().Error("error", err))
	msg := err.Error()
	s.writeJSON(w, code, statusResponse{Error: &msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("writing control response", s.logger.Field().Error("error", err))
	}
}
