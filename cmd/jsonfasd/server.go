package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/go-logr/logr"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/MrEthical07/jsonfas"
	"github.com/MrEthical07/jsonfas/metrics/export/prometheus"
	"github.com/MrEthical07/jsonfas/middleware"
)

const shutdownTimeout = 10 * time.Second

type serverConfig struct {
	Addr                 string
	EnableRequestLogging bool
	TrustProxyHeaders    bool
}

// whoamiResponse is the JSON body for a resolved user.
type whoamiResponse struct {
	ID        int64    `json:"id"`
	Username  string   `json:"username"`
	HumanName string   `json:"human_name,omitempty"`
	Email     string   `json:"email,omitempty"`
	Groups    []string `json:"groups"`
	CSRFToken string   `json:"csrf_token"`
	UsingSSL  bool     `json:"using_ssl"`
}

type errorResponse struct {
	Error    string `json:"error"`
	Reason   string `json:"reason,omitempty"`
	LoginURL string `json:"login_url,omitempty"`
}

func newRouter(logger logr.Logger, cfg serverConfig, provider *jsonfas.Provider) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": jsonfas.Version})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", prometheus.NewExporter(provider).Handler()).Methods(http.MethodGet)

	// Everything else resolves an identity first.
	ident := r.NewRoute().Subrouter()
	ident.Use(middleware.Identify(provider))
	ident.HandleFunc("/login", login).Methods(http.MethodPost)
	ident.HandleFunc("/logout", logout).Methods(http.MethodPost)
	ident.Handle("/whoami", middleware.RequireUser(http.HandlerFunc(whoami))).Methods(http.MethodGet)

	if cfg.EnableRequestLogging {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				m := httpsnoop.CaptureMetrics(next, w, r)
				logger.Info("request",
					"duration", fmt.Sprintf("%dms", m.Duration.Milliseconds()),
					"status", m.Code,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", w.Header().Get(middleware.RequestIDHeader))
			})
		})
	}

	var h http.Handler = r
	if cfg.TrustProxyHeaders {
		h = handlers.ProxyHeaders(h)
	}
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger}),
		handlers.PrintRecoveryStack(true),
	)(h)
}

func login(w http.ResponseWriter, r *http.Request) {
	ident, _ := middleware.IdentityFromContext(r.Context())
	if ident.User(r.Context()) == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{
			Error:    "login failed",
			Reason:   ident.FailureReason(),
			LoginURL: ident.LoginURL(),
		})
		return
	}
	writeWhoami(w, r, ident)
}

func logout(w http.ResponseWriter, r *http.Request) {
	ident, _ := middleware.IdentityFromContext(r.Context())
	ident.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func whoami(w http.ResponseWriter, r *http.Request) {
	ident, _ := middleware.IdentityFromContext(r.Context())
	writeWhoami(w, r, ident)
}

func writeWhoami(w http.ResponseWriter, r *http.Request, ident *jsonfas.Identity) {
	user := ident.User(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, whoamiResponse{
		ID:        user.ID,
		Username:  user.Username,
		HumanName: user.HumanName,
		Email:     user.Email,
		Groups:    ident.Groups(r.Context()),
		CSRFToken: ident.CSRFToken(),
		UsingSSL:  ident.UsingSSL(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// recoveryLogger adapts logr to the gorilla recovery handler.
type recoveryLogger struct {
	logr.Logger
}

func (l recoveryLogger) Println(args ...any) {
	l.Error(nil, "recovered from panic", "detail", fmt.Sprint(args...))
}

// serve runs handler on ln until it fails or ctx is cancelled.
func serve(ctx context.Context, logger logr.Logger, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errch := make(chan error, 1)
	go func() {
		errch <- srv.Serve(ln)
	}()

	logger.Info("started server", "address", ln.Addr().String())

	select {
	case err := <-errch:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("gracefully shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return srv.Close()
		}
		return nil
	}
}
