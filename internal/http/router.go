/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
	"context"
	"time"

	"github.com/andrewchw/jira-action-items-chatbot/internal/config"
	"github.com/andrewchw/jira-action-items-chatbot/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type chatService interface {
	Handle(ctx context.Context, userID, text string) domain.CommandResult
}

type notificationQueue interface {
	Drain(userID string) []domain.Notification
	Pending(userID string) int
	PushTest(userID, message string, now time.Time) domain.Notification
}

type reminderStore interface {
	SnoozeReminder(ctx context.Context, id int64, until time.Time) error
	DeleteReminder(ctx context.Context, id int64) error
}

// trackerMeta exposes read-only tracker metadata for client-side pickers.
type trackerMeta interface {
	Projects(ctx context.Context, userID string) ([]map[string]any, error)
	Project(ctx context.Context, userID, key string) (map[string]any, error)
	IssueTypes(ctx context.Context, userID string) ([]map[string]any, error)
	FieldMeta(ctx context.Context) ([]map[string]any, error)
	User(ctx context.Context, id string) (domain.IdentityRecord, error)
}

type Server struct {
	chat  chatService
	queue notificationQueue
	rems  reminderStore
	meta  trackerMeta
	log   zerolog.Logger
}

func NewRouter(cfg config.Config, chat chatService, queue notificationQueue, rems reminderStore, meta trackerMeta, log zerolog.Logger) *gin.Engine {
	if cfg.AppEnv == "production" { gin.SetMode(gin.ReleaseMode) }
	s := &Server{chat: chat, queue: queue, rems: rems, meta: meta, log: log}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(log))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	api := r.Group("/api")
	{
		api.POST("/chat/message", s.handleChatMessage)
		api.GET("/reminders/check", s.handleRemindersCheck)
		api.POST("/reminders/test", s.handleReminderTest)
		api.POST("/reminders/snooze", s.handleReminderSnooze)
		api.POST("/reminders/mark-done", s.handleReminderDone)

		api.GET("/jira/projects", s.handleProjects)
		api.GET("/jira/projects/:key", s.handleProject)
		api.GET("/jira/issue-types", s.handleIssueTypes)
		api.GET("/jira/fields", s.handleFields)
		api.GET("/jira/users/:id", s.handleUser)
	}
	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" { id = uuid.NewString() }
		c.Set("request_id", id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

func accessLog(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("dur", time.Since(start)).
			Str("request_id", c.GetString("request_id")).
			Msg("http")
	}
}
