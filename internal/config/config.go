// Copyright 2025 Acnodal Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config reads the hub's environment. Flags in cmd/hub can
// override the listener ports; everything else is env-only.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DefaultSecret is the JWT secret used when JWT_SECRET is unset. Fine
// for a laptop, not for anything reachable.
const DefaultSecret = "peerhub-dev-secret"

// Config is everything cmd/hub needs to assemble the service.
type Config struct {
	Port        int
	MetricsPort int

	// DatabaseURL selects the driver by scheme: "sqlite:" or
	// "postgres://".
	DatabaseURL string
	JWTSecret   string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// RedisAddr switches rate limiting to the shared Redis counter
	// when non-empty.
	RedisAddr string

	PingInterval      time.Duration
	PongTimeout       time.Duration
	PongCheckInterval time.Duration
}

// Load builds a Config from the environment, applying defaults for
// everything a dev deployment can run without.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:  envString("DATABASE_URL", "sqlite:peerhub.db"),
		JWTSecret:    envString("JWT_SECRET", DefaultSecret),
		SMTPHost:     envString("SMTP_SERVER", ""),
		SMTPUsername: envString("SMTP_USERNAME", ""),
		SMTPPassword: envString("SMTP_PASSWORD", ""),
		RedisAddr:    envString("REDIS_ADDR", ""),
	}
	cfg.SMTPFrom = envString("FROM_EMAIL", cfg.SMTPUsername)

	var err error
	if cfg.Port, err = envInt("PORT", 8000); err != nil {
		return nil, err
	}
	if cfg.MetricsPort, err = envInt("METRICS_PORT", 7472); err != nil {
		return nil, err
	}
	if cfg.SMTPPort, err = envInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	if cfg.PingInterval, err = envDuration("PING_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.PongTimeout, err = envDuration("PONG_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if cfg.PongCheckInterval, err = envDuration("PONG_CHECK_INTERVAL", 0); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration", key, v)
	}
	return d, nil
}
