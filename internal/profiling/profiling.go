// Package profiling exposes env-gated pprof and Pyroscope profiling.
// Both start before config loading, so they configure themselves from
// the environment alone.
package profiling

import (
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"

	"github.com/grafana/pyroscope-go"
)

// StartPprofServer serves the standard pprof endpoints on localhost when
// ENABLE_PROFILING=true. PPROF_PORT moves it off the default 6060.
func StartPprofServer() {
	if os.Getenv("ENABLE_PROFILING") != "true" {
		return
	}

	port := os.Getenv("PPROF_PORT")
	if port == "" {
		port = "6060"
	}
	addr := "localhost:" + port

	go func() {
		log.Printf("pprof server listening on http://%s/debug/pprof/", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Printf("pprof server error: %v", err)
		}
	}()
}

// Profiler wraps a running Pyroscope session.
type Profiler struct {
	profiler *pyroscope.Profiler
}

// StartPyroscope begins continuous profiling when
// ENABLE_CONTINUOUS_PROFILING=true, pushing to PYROSCOPE_SERVER_URL
// (default http://pyroscope:4040) tagged with PYROSCOPE_ENVIRONMENT.
// Returns (nil, nil) when disabled; Stop on a nil Profiler is a no-op.
func StartPyroscope(serviceName string) (*Profiler, error) {
	if os.Getenv("ENABLE_CONTINUOUS_PROFILING") != "true" {
		return nil, nil
	}

	serverURL := os.Getenv("PYROSCOPE_SERVER_URL")
	if serverURL == "" {
		serverURL = "http://pyroscope:4040"
	}
	environment := os.Getenv("PYROSCOPE_ENVIRONMENT")
	if environment == "" {
		environment = "development"
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: "north-cloud." + serviceName,
		ServerAddress:   serverURL,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
		Tags: map[string]string{
			"environment": environment,
			"hostname":    hostname(),
			"go_version":  runtime.Version(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("start pyroscope: %w", err)
	}

	log.Printf("pyroscope profiling started for north-cloud.%s at %s", serviceName, serverURL)
	return &Profiler{profiler: profiler}, nil
}

// Stop flushes and stops the profiler. Safe on nil.
func (p *Profiler) Stop() error {
	if p == nil || p.profiler == nil {
		return nil
	}
	return p.profiler.Stop()
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
