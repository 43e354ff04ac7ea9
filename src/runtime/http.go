package runtime

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"
)

// HTTPServer runs an http.Handler as a managed module.
type HTTPServer struct {
	srv *http.Server
}

func NewHTTPServer(addr string, handler http.Handler) *HTTPServer {
	return &HTTPServer{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

func (h *HTTPServer) Name() string { return "http" }

func (h *HTTPServer) Start(ctx context.Context) error {
	go func() {
		log.Printf("http: listening on %s", h.srv.Addr)
		if err := h.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http: serve: %v", err)
		}
	}()
	return nil
}

func (h *HTTPServer) Stop(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := h.srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http: shutdown: %v", err)
	}
}
