package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Checker wires the checks behind /healthz. Nil checks are left out of the
// report.
type Checker struct {
	DBPing  func(ctx context.Context) error
	RPCPing func(ctx context.Context) error
	// States reports the current phase of each relay direction.
	States func() map[string]string
}

const checkTimeout = 3 * time.Second

// Handler serves /healthz. Any failing check turns the response into a 503.
func Handler(checker Checker) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		report := map[string]string{"status": "ok"}
		healthy := true
		for name, ping := range map[string]func(context.Context) error{"db": checker.DBPing, "rpc": checker.RPCPing} {
			if ping == nil {
				continue
			}
			report[name] = "ok"
			if err := ping(ctx); err != nil {
				report[name] = "fail"
				healthy = false
			}
		}
		if checker.States != nil {
			for dir, state := range checker.States() {
				report[dir] = state
			}
		}

		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	})
	return mux
}

// Serve starts the health handler in the background.
func Serve(addr string, checker Checker) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(checker),
		ReadHeaderTimeout: checkTimeout,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// Shutdown stops the health server, waiting for in-flight requests.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
