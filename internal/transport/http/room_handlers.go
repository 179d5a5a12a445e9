package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RoomHandlers exposes read-only views of the relay's in-memory rooms.
type RoomHandlers struct {
	relay Relay
	log   *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(relay Relay, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{relay: relay, log: logger}
}

// ParticipantsResponse lists who is connected to a room.
type ParticipantsResponse struct {
	Room         string   `json:"room"`
	Participants []string `json:"participants"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListParticipants returns the participants whose live connection is in the room.
// GET /api/rooms/:room/participants
func (h *RoomHandlers) ListParticipants(c *gin.Context) {
	room := c.Param("room")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	participants, err := h.relay.Participants(ctx, room)
	if err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("failed to list participants")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "relay unavailable"})
		return
	}

	c.JSON(http.StatusOK, ParticipantsResponse{Room: room, Participants: participants})
}
