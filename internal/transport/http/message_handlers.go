package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chatline/chatline-server/internal/core"
	"github.com/chatline/chatline-server/internal/store"
)

// MessageHandlers provides HTTP handlers for message history and editing.
type MessageHandlers struct {
	store        store.Store
	engine       *core.Engine
	historyLimit int
	log          *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(st store.Store, engine *core.Engine, historyLimit int, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		store:        st,
		engine:       engine,
		historyLimit: historyLimit,
		log:          logger,
	}
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID        int64  `json:"id"`
	RoomID    int64  `json:"room_id"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Seq       int64  `json:"seq"`
	CreatedAt string `json:"created_at"`
}

// UpdateMessageRequest represents the edit message request body.
type UpdateMessageRequest struct {
	Text string `json:"text" binding:"required,min=1"`
}

// ListRoomMessages returns a room's history in ascending sequence order.
// GET /api/rooms/:id/messages
func (h *MessageHandlers) ListRoomMessages(c *gin.Context) {
	roomID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid room id"})
		return
	}

	messages, err := h.engine.History(c.Request.Context(), roomID, h.historyLimit)
	if err != nil {
		if errors.Is(err, core.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		h.log.Error().Err(err).Int64("room_id", roomID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		response = append(response, MessageResponse{
			ID:        m.ID,
			RoomID:    m.RoomID,
			UserID:    m.UserID,
			Username:  m.Username,
			Text:      m.Text,
			Seq:       m.Seq,
			CreatedAt: m.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	c.JSON(http.StatusOK, response)
}

// UpdateMessage edits a message's text. Only the author may edit.
// PUT /api/messages/:id
func (h *MessageHandlers) UpdateMessage(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message id"})
		return
	}

	var req UpdateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.store.GetMessageByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
			return
		}
		h.log.Error().Err(err).Int64("message_id", id).Msg("failed to get message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	if msg.UserID != uid {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "cannot edit another user's message"})
		return
	}

	if err := h.store.UpdateMessageBody(c.Request.Context(), id, req.Text); err != nil {
		h.log.Error().Err(err).Int64("message_id", id).Msg("failed to update message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.Status(http.StatusNoContent)
}

// DeleteMessage removes a message. Only the author may delete.
// DELETE /api/messages/:id
func (h *MessageHandlers) DeleteMessage(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message id"})
		return
	}

	msg, err := h.store.GetMessageByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
			return
		}
		h.log.Error().Err(err).Int64("message_id", id).Msg("failed to get message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	if msg.UserID != uid {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "cannot delete another user's message"})
		return
	}

	if err := h.store.DeleteMessage(c.Request.Context(), id); err != nil {
		h.log.Error().Err(err).Int64("message_id", id).Msg("failed to delete message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.Status(http.StatusNoContent)
}
