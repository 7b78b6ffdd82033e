// Copyright 2025 Worldtree Labs
//
// Metrics and health endpoints for the coordinator.

package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/worldtree/identity-coordinator/pkg/logging"
)

// Config holds the listen addresses for the operational servers.
type Config struct {
	MetricsAddress string
	HealthAddress  string
}

// Pinger is anything whose liveness the health endpoint reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a plain function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

// Ping calls f.
func (f PingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// healthHandler reports component connectivity as JSON.
type healthHandler struct {
	components map[string]Pinger
}

func (h healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type status struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}

	result := status{Status: "ok", Components: make(map[string]string, len(h.components))}
	for name, component := range h.components {
		if err := component.Ping(r.Context()); err != nil {
			result.Status = "degraded"
			result.Components[name] = err.Error()
			continue
		}
		result.Components[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if result.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(result); err != nil {
		logging.Logger().Error().Err(err).Msg("error writing health response")
	}
}

func spawnServerJob(server *http.Server, label string) RunningJob {
	start := func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			logging.Logger().Fatal().Err(err).Msgf("%s failed", label)
		}
	}
	shutdown := func() {
		logging.Logger().Info().Msgf("shutting down %s", label)
		if err := server.Shutdown(context.Background()); err != nil {
			logging.Logger().Error().Err(err).Msgf("error when shutting down %s", label)
		}
	}
	return SpawnJob(start, shutdown)
}

// Run starts the metrics and health servers and returns their combined job
// handle.
func Run(config *Config, components map[string]Pinger) RunningJob {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: config.MetricsAddress, Handler: metricsMux}
	metricsJob := spawnServerJob(metricsServer, "metrics server")
	logging.Logger().Info().Str("addr", config.MetricsAddress).Msg("metrics server started")

	healthMux := http.NewServeMux()
	healthMux.Handle("/health", healthHandler{components: components})
	healthServer := &http.Server{Addr: config.HealthAddress, Handler: healthMux}
	healthJob := spawnServerJob(healthServer, "health server")
	logging.Logger().Info().Str("addr", config.HealthAddress).Msg("health server started")

	return CombineJobs(metricsJob, healthJob)
}
