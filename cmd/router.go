package main

import (
	"net/http"

	"github.com/avasilakis/llm-gateway/internal/handler"
	"github.com/avasilakis/llm-gateway/internal/metrics"
)

func setupRouter(gatewayHandler *handler.GatewayHandler, aggregator *metrics.Aggregator) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /generate", gatewayHandler.Generate)
	mux.HandleFunc("POST /experiments", gatewayHandler.StartExperiment)
	mux.HandleFunc("POST /experiments/{id}/assign", gatewayHandler.Assign)
	mux.HandleFunc("GET /experiments/{id}/results", gatewayHandler.Results)
	mux.HandleFunc("GET /breakers", gatewayHandler.Breakers)
	mux.HandleFunc("GET /metrics", aggregator.Handler())
	mux.HandleFunc("GET /health", gatewayHandler.Health)

	return mux
}
