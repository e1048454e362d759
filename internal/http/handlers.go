package http

import (
	"net/http"
	"time"

	"github.com/andrewchw/jira-action-items-chatbot/internal/domain"
	"github.com/gin-gonic/gin"
)

type chatMessageReq struct {
	UserID string `json:"user_id" binding:"required"`
	Text   string `json:"text" binding:"required"`
}

func (s *Server) handleChatMessage(c *gin.Context) {
	var req chatMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and text are required"})
		return
	}
	res := s.chat.Handle(c.Request.Context(), req.UserID, req.Text)
	status := http.StatusOK
	if !res.Success && res.Error != "" { status = http.StatusUnprocessableEntity }
	c.JSON(status, res)
}

// handleRemindersCheck is the client's poll endpoint. Draining is atomic:
// two concurrent polls never both receive the same notification.
func (s *Server) handleRemindersCheck(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	items := s.queue.Drain(userID)
	if items == nil { items = []domain.Notification{} }
	c.JSON(http.StatusOK, gin.H{"notifications": items, "count": len(items)})
}

func (s *Server) handleReminderTest(c *gin.Context) {
	var req struct {
		UserID  string `json:"user_id" binding:"required"`
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	n := s.queue.PushTest(req.UserID, req.Message, time.Now())
	c.JSON(http.StatusOK, gin.H{"queued": n, "pending": s.queue.Pending(req.UserID)})
}

func (s *Server) handleReminderSnooze(c *gin.Context) {
	var req struct {
		ReminderID int64 `json:"reminder_id" binding:"required"`
		Minutes    int   `json:"minutes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reminder_id is required"})
		return
	}
	if req.Minutes <= 0 { req.Minutes = 60 }
	until := time.Now().Add(time.Duration(req.Minutes) * time.Minute)
	if err := s.rems.SnoozeReminder(c.Request.Context(), req.ReminderID, until); err != nil {
		s.log.Error().Err(err).Int64("id", req.ReminderID).Msg("snooze failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not snooze reminder"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snoozed_until": until})
}

func (s *Server) handleProjects(c *gin.Context) {
	projects, err := s.meta.Projects(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		s.log.Error().Err(err).Msg("project listing failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not fetch projects"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (s *Server) handleProject(c *gin.Context) {
	project, err := s.meta.Project(c.Request.Context(), c.Query("user_id"), c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not fetch project"})
		return
	}
	c.JSON(http.StatusOK, project)
}

func (s *Server) handleIssueTypes(c *gin.Context) {
	types, err := s.meta.IssueTypes(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not fetch issue types"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"issue_types": types})
}

func (s *Server) handleFields(c *gin.Context) {
	meta, err := s.meta.FieldMeta(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not fetch field metadata"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"fields": meta})
}

func (s *Server) handleUser(c *gin.Context) {
	rec, err := s.meta.User(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account_id":   rec.StableID,
		"username":     rec.Username,
		"display_name": rec.DisplayName,
		"email":        rec.Email,
		"avatar_url":   rec.AvatarURL,
		"active":       rec.Active,
	})
}

func (s *Server) handleReminderDone(c *gin.Context) {
	var req struct {
		ReminderID int64 `json:"reminder_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reminder_id is required"})
		return
	}
	if err := s.rems.DeleteReminder(c.Request.Context(), req.ReminderID); err != nil {
		s.log.Error().Err(err).Int64("id", req.ReminderID).Msg("mark-done failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not complete reminder"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"done": true})
}
