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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"peerhub.io/internal/auth"
	"peerhub.io/internal/config"
	"peerhub.io/internal/httpapi"
	"peerhub.io/internal/hub"
	"peerhub.io/internal/ipam"
	"peerhub.io/internal/logging"
	"peerhub.io/internal/mail"
	"peerhub.io/internal/ratelimit"
	"peerhub.io/internal/store"
)

func main() {
	logger := logging.Init()

	cfg, err := config.Load()
	if err != nil {
		logger.Log("op", "startup", "error", err, "msg", "invalid configuration")
		os.Exit(1)
	}

	var (
		port        = flag.Int("port", cfg.Port, "HTTP listening port for the API and signaling WebSocket")
		metricsPort = flag.Int("metrics-port", cfg.MetricsPort, "HTTP listening port for Prometheus metrics")
	)
	flag.Parse()

	if cfg.JWTSecret == config.DefaultSecret {
		logger.Log("op", "startup", "msg", "JWT_SECRET not set, using the development secret")
	}

	db, err := store.Open(logger, cfg.DatabaseURL)
	if err != nil {
		logger.Log("op", "startup", "error", err, "msg", "failed to open store")
		os.Exit(1)
	}
	defer db.Close()

	secret := []byte(cfg.JWTSecret)
	issuer := auth.NewIssuer(secret, auth.TokenTTL)
	verifier := auth.NewVerifier(secret)

	h := hub.New(logger, hub.Config{
		PingInterval:      cfg.PingInterval,
		PongTimeout:       cfg.PongTimeout,
		PongCheckInterval: cfg.PongCheckInterval,
	}, verifier, db)

	var mailer mail.Sender = &mail.LogSender{Logger: logger}
	if cfg.SMTPHost != "" {
		mailer = &mail.SMTPSender{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}
	}

	var limiter ratelimit.Limiter = ratelimit.NewKeyedLimiter(30, 10)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		limiter = ratelimit.NewRedisLimiter(client, 30, time.Minute)
	}

	api := httpapi.New(httpapi.Deps{
		Logger:   logger,
		Store:    db,
		Issuer:   issuer,
		Verifier: verifier,
		IPs:      ipam.NewService(logger, db),
		Mailer:   mailer,
		Limiter:  limiter,
		WS:       h.ServeWS,
	})

	go httpapi.RunMetrics("", *metricsPort)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: api.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Log("op", "startup", "port", *port, "msg", "listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Log("op", "shutdown", "msg", "draining sessions")
		h.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Log("op", "shutdown", "error", err)
		os.Exit(1)
	}
}
