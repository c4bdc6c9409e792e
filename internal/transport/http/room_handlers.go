package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chatline/chatline-server/internal/core"
	"github.com/chatline/chatline-server/internal/store"
)

// RoomHandlers provides HTTP handlers for room management endpoints.
type RoomHandlers struct {
	store    store.Store
	registry *core.Registry
	log      *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(st store.Store, registry *core.Registry, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		store:    st,
		registry: registry,
		log:      logger,
	}
}

// CreateRoomRequest represents the create room request body.
type CreateRoomRequest struct {
	Name string `json:"name" binding:"required,min=1,max=64"`
}

// RoomResponse represents a room in API responses. LiveMembers is the number
// of connections currently joined, derived from the in-memory registry.
type RoomResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	LiveMembers int    `json:"live_members"`
	CreatedAt   string `json:"created_at"`
}

// CreateRoom handles room creation.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	room, err := h.store.CreateRoom(c.Request.Context(), req.Name)
	if err != nil {
		// SQLite UNIQUE constraint on room name
		if strings.Contains(err.Error(), "UNIQUE") {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "room with this name already exists"})
			return
		}
		h.log.Error().Err(err).Str("room_name", req.Name).Msg("failed to create room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("room_name", room.Name).Int64("room_id", room.ID).Msg("room created successfully")
	c.JSON(http.StatusCreated, h.roomResponse(room))
}

// ListRooms handles listing rooms.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	rooms, err := h.store.ListRooms(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		response = append(response, h.roomResponse(room))
	}

	c.JSON(http.StatusOK, response)
}

// GetRoom handles fetching a single room.
// GET /api/rooms/:id
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid room id"})
		return
	}

	room, err := h.store.GetRoomByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		h.log.Error().Err(err).Int64("room_id", id).Msg("failed to get room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, h.roomResponse(room))
}

func (h *RoomHandlers) roomResponse(room *store.Room) RoomResponse {
	return RoomResponse{
		ID:          room.ID,
		Name:        room.Name,
		LiveMembers: len(h.registry.Members(room.ID)),
		CreatedAt:   room.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
