// Package config loads the streamer's environment-variable configuration,
// per spec.md §6's CLI surface. No example repo in the corpus pulls in an
// env-binding library (viper, envconfig, etc.) for a surface this small;
// os.Getenv plus manual parsing is the standard-library approach every
// teacher-adjacent repo uses for the same handful of variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xvii-vision/genicvbridge/internal/backend"
)

// Config is the streamer's fully-resolved configuration.
type Config struct {
	Port           int
	CamIndex       int
	CompressionExt string
	FPS            float64
	MaxQueue       int
	Backend        backend.Kind
	LineEnable     bool
	TriggerPin     *int
	BufferTimeout  *time.Duration
}

// Load reads STREAMSERVER_* environment variables, applying spec.md §6's
// defaults and rejecting STREAMSERVER_BACKEND=any.
func Load() (Config, error) {
	cfg := Config{
		Port:           8888,
		CamIndex:       0,
		CompressionExt: ".jpg",
		FPS:            3.0,
		MaxQueue:       10,
		Backend:        backend.IdsPeak,
	}

	if v := os.Getenv("STREAMSERVER_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: STREAMSERVER_PORT: %w", err)
		}
		cfg.Port = n
	}

	if v := os.Getenv("STREAMSERVER_CAMIDX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: STREAMSERVER_CAMIDX: %w", err)
		}
		cfg.CamIndex = n
	}

	if v := os.Getenv("STREAMSERVER_COMPRESSIONEXT"); v != "" {
		cfg.CompressionExt = v
	}

	if v := os.Getenv("STREAMSERVER_FPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: STREAMSERVER_FPS: %w", err)
		}
		cfg.FPS = f
	}

	if v := os.Getenv("STREAMSERVER_MAXQUEUE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: STREAMSERVER_MAXQUEUE: %w", err)
		}
		cfg.MaxQueue = n
	}

	if v := os.Getenv("STREAMSERVER_BACKEND"); v != "" {
		kind, err := parseBackend(v)
		if err != nil {
			return Config{}, err
		}
		cfg.Backend = kind
	}

	cfg.LineEnable = os.Getenv("STREAMSERVER_LINEENABLE") != "" && os.Getenv("STREAMSERVER_LINEENABLE") != "0"

	if v := os.Getenv("STREAMSERVER_TRIGGERPIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: STREAMSERVER_TRIGGERPIN: %w", err)
		}
		cfg.TriggerPin = &n
	}

	return cfg, nil
}

func parseBackend(v string) (backend.Kind, error) {
	switch strings.ToLower(v) {
	case "spinnaker":
		return backend.Spinnaker, nil
	case "ids":
		return backend.IdsPeak, nil
	case "aravis":
		return backend.Aravis, nil
	case "any":
		return backend.Any, fmt.Errorf("config: STREAMSERVER_BACKEND=any is not accepted")
	default:
		return backend.Any, fmt.Errorf("config: STREAMSERVER_BACKEND: unrecognized value %q", v)
	}
}

// Addr renders the listen address for http.Server.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}
