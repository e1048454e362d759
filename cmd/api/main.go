/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/andrewchw/jira-action-items-chatbot/internal/adapters/jira"
	"github.com/andrewchw/jira-action-items-chatbot/internal/adapters/llm"
	"github.com/andrewchw/jira-action-items-chatbot/internal/config"
	"github.com/andrewchw/jira-action-items-chatbot/internal/domain"
	"github.com/andrewchw/jira-action-items-chatbot/internal/fields"
	apihttp "github.com/andrewchw/jira-action-items-chatbot/internal/http"
	"github.com/andrewchw/jira-action-items-chatbot/internal/identity"
	"github.com/andrewchw/jira-action-items-chatbot/internal/jobs"
	"github.com/andrewchw/jira-action-items-chatbot/internal/logger"
	"github.com/andrewchw/jira-action-items-chatbot/internal/nlp"
	"github.com/andrewchw/jira-action-items-chatbot/internal/repo"
	"github.com/andrewchw/jira-action-items-chatbot/internal/services"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.Load()
	logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db := repo.MustOpen(ctx, cfg.DBDSN)
	defer db.Close()
	store := repo.New(db)
	if err := store.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	mode := domain.DeployMode(cfg.JiraDeployMode)
	tracker := jira.NewClient(cfg, store, store, log.Logger)
	resolver := identity.NewResolver(tracker, store, mode, log.Logger)
	mapper := fields.NewMapper(resolver, mode, log.Logger)
	extractor := nlp.New(log.Logger)
	completer := llm.NewClient(cfg, store, log.Logger)

	svc := services.New(extractor, mapper, resolver, tracker, store, completer, cfg, log.Logger)

	// Warm the identity cache in the background; resolution falls back to
	// on-demand directory searches until it completes.
	go func() {
		if n, err := resolver.BulkSync(ctx); err != nil {
			log.Warn().Err(err).Msg("directory sync failed")
		} else {
			log.Info().Int("users", n).Msg("directory synced")
		}
	}()

	queue := jobs.NewQueue()
	scheduler := jobs.NewScheduler(cfg, store, tracker, queue, log.Logger)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("scheduler")
	}

	router := apihttp.NewRouter(cfg, svc, queue, store, tracker, log.Logger)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("mode", cfg.JiraDeployMode).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	<-scheduler.Stop().Done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
}
