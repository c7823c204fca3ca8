package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/talkwire/talkwire-server/internal/store"
)

const (
	defaultMessagePageSize = 50
	maxMessagePageSize     = 100
)

// ConversationHandlers provides HTTP handlers for conversation endpoints.
type ConversationHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewConversationHandlers creates a new conversation handlers instance.
func NewConversationHandlers(st store.Store, logger *zerolog.Logger) *ConversationHandlers {
	return &ConversationHandlers{store: st, log: logger}
}

// CreateConversationRequest represents the conversation creation body.
type CreateConversationRequest struct {
	Type           string  `json:"type" binding:"required,oneof=private group"`
	Name           string  `json:"name"`
	ParticipantIDs []int64 `json:"participantIds" binding:"required,min=1"`
}

// List returns the caller's conversations.
// GET /api/conversations
func (h *ConversationHandlers) List(c *gin.Context) {
	userID := c.GetInt64(ContextKeyUserID)

	conversations, err := h.store.ListConversationsForUser(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to list conversations")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// Create creates a conversation with the caller as a participant.
// POST /api/conversations
func (h *ConversationHandlers) Create(c *gin.Context) {
	userID := c.GetInt64(ContextKeyUserID)

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create conversation request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	// The caller is always a participant, listed or not.
	seen := map[int64]struct{}{userID: {}}
	participants := []int64{userID}
	for _, id := range req.ParticipantIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		participants = append(participants, id)
	}

	convType := store.ConversationType(req.Type)
	if convType == store.ConversationPrivate && len(participants) != 2 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "private conversation requires exactly one peer"})
		return
	}

	conv, err := h.store.CreateConversation(c.Request.Context(), &store.Conversation{
		Type:         convType,
		Name:         req.Name,
		Participants: participants,
	})
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to create conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

// Messages returns a page of a conversation's history, newest first.
// GET /api/conversations/:id/messages?limit=&before=
func (h *ConversationHandlers) Messages(c *gin.Context) {
	userID := c.GetInt64(ContextKeyUserID)

	convID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || convID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid conversation id"})
		return
	}

	ok, err := h.store.IsParticipant(c.Request.Context(), convID, userID)
	if err != nil {
		h.log.Error().Err(err).Int64("conversation_id", convID).Msg("failed to check membership")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !ok {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a participant"})
		return
	}

	limit := defaultMessagePageSize
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxMessagePageSize {
		limit = maxMessagePageSize
	}

	var beforeID *int64
	if raw := c.Query("before"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before cursor"})
			return
		}
		beforeID = &n
	}

	messages, err := h.store.ListMessages(c.Request.Context(), convID, limit, beforeID)
	if err != nil {
		h.log.Error().Err(err).Int64("conversation_id", convID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}
