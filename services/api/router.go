// Package api is the HTTP control surface of alsd.
package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"alsd/errcode"
	"alsd/services/als"
	"alsd/services/config"
	"alsd/types"
)

// Controller is the subset of *als.Controller the API drives.
type Controller interface {
	Enable() error
	Disable()
	Apply(als.Settings)
	Status() types.ALSStatus
	LiveSample(ctx context.Context) (float64, error)
	Curve(ctx context.Context) types.Curve
}

// Settings persists loop settings and the enabled flag.
type Settings interface {
	Config() config.Config
	SaveSettings(config.Settings) error
	SaveEnabled(bool) error
}

// Curves persists the brightness curve.
type Curves interface {
	Set(ctx context.Context, c types.Curve) error
}

type Server struct {
	Ctrl     Controller
	Settings Settings
	Curves   Curves
	Gatherer prometheus.Gatherer // nil: prometheus.DefaultGatherer
	Log      *slog.Logger
}

// NewRouter registers every route.
func (s *Server) NewRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.health).Methods("GET")
	r.HandleFunc("/status", s.getStatus).Methods("GET")
	r.HandleFunc("/enable", s.postEnable).Methods("POST")
	r.HandleFunc("/disable", s.postDisable).Methods("POST")
	r.HandleFunc("/settings", s.getSettings).Methods("GET")
	r.HandleFunc("/settings", s.putSettings).Methods("PUT")
	r.HandleFunc("/als/live", s.getLive).Methods("GET")
	r.HandleFunc("/curve", s.getCurve).Methods("GET")
	r.HandleFunc("/curve", s.putCurve).Methods("PUT")

	g := s.Gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{})).Methods("GET")
	return r
}

// Handler wraps the router with request logging and panic recovery.
func (s *Server) Handler() http.Handler {
	lg := s.logger()
	logged := handlers.CustomLoggingHandler(io.Discard, s.NewRouter(), func(_ io.Writer, p handlers.LogFormatterParams) {
		lg.Info("http", "method", p.Request.Method, "path", p.URL.Path, "status", p.StatusCode, "size", p.Size)
	})
	return handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{lg}))(logged)
}

func (s *Server) logger() *slog.Logger {
	if s.Log == nil {
		return slog.Default().With("svc", "api")
	}
	return s.Log.With("svc", "api")
}

type recoveryLogger struct{ log *slog.Logger }

func (r recoveryLogger) Println(v ...any) { r.log.Error("panic in handler", "panic", v) }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatus(errcode.Of(err)), types.ErrorReply{OK: false, Error: err.Error()})
}

func httpStatus(c errcode.Code) int {
	switch c {
	case errcode.OK:
		return http.StatusOK
	case errcode.InvalidParams, errcode.InvalidPayload, errcode.InvalidCurve:
		return http.StatusBadRequest
	case errcode.NotFound, errcode.UnknownDevice:
		return http.StatusNotFound
	case errcode.Busy:
		return http.StatusConflict
	case errcode.Unsupported:
		return http.StatusNotImplemented
	case errcode.Unavailable, errcode.Closed:
		return http.StatusServiceUnavailable
	case errcode.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
