package service

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/rs/cors"
)

type HealthzServer struct {
	ctx     context.Context
	server  *http.Server
	version string
}

type healthzResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	hdlr := http.NewServeMux()
	hdlr.HandleFunc("/healthz", h.Handle)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	server := &http.Server{
		Handler: c.Handler(hdlr),
		Addr:    addr,
	}
	h.server = server
	h.ctx = ctx
	return h.server.ListenAndServe()
}

func (h *HealthzServer) Shutdown() error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(h.ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	log.Printf("Received health check request at %s", r.URL.Path)
	w.Header().Set("Content-Type", "application/json")
	resp := healthzResponse{Status: "ok", Version: h.version}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
