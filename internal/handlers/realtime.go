package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/jaemin-s/eventsync/internal/auth"
	"github.com/jaemin-s/eventsync/internal/realtime"
	"github.com/jaemin-s/eventsync/pkg/errors"
	"github.com/jaemin-s/eventsync/pkg/response"
)

// RealtimeHandler upgrades HTTP connections into change-stream websockets.
type RealtimeHandler struct {
	hub            *realtime.Hub
	jwt            *iauth.JWTService
	requireAuth    bool
	allowedStreams map[string]struct{}
}

// NewRealtimeHandler constructs a realtime handler restricted to streams.
// With requireAuth unset, anonymous callers may subscribe; a supplied token must still be valid.
func NewRealtimeHandler(hub *realtime.Hub, jwt *iauth.JWTService, requireAuth bool, streams ...string) *RealtimeHandler {
	allowed := make(map[string]struct{}, len(streams))
	for _, stream := range streams {
		if stream = normalizeStream(stream); stream != "" {
			allowed[stream] = struct{}{}
		}
	}
	return &RealtimeHandler{
		hub:            hub,
		jwt:            jwt,
		requireAuth:    requireAuth,
		allowedStreams: allowed,
	}
}

// Stream validates the caller and hands the connection to the hub.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	subject := "anonymous"
	token := streamToken(c)
	switch {
	case token != "" && h.jwt != nil:
		claims, err := h.jwt.ValidateAccessToken(token)
		if err != nil || strings.TrimSpace(claims.UserID) == "" {
			response.Error(c, errors.ErrUnauthorized)
			return
		}
		subject = claims.UserID
	case h.requireAuth:
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	streams := gatherStreams(c)
	if len(streams) == 0 {
		streams = []string{realtime.StreamEvents}
	}
	if len(h.allowedStreams) > 0 {
		for _, stream := range streams {
			if _, ok := h.allowedStreams[stream]; !ok {
				response.Error(c, errors.ErrNotFound)
				return
			}
		}
	}

	h.hub.Serve(subject, streams, c.Writer, c.Request)
}

// streamToken reads the token from the query (browsers cannot set headers on websockets) or the header.
func streamToken(c *gin.Context) string {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = strings.TrimSpace(c.Query("access_token"))
	}
	if token == "" {
		authz := c.GetHeader("Authorization")
		if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			token = strings.TrimSpace(authz[7:])
		}
	}
	return token
}

func gatherStreams(c *gin.Context) []string {
	var streams []string

	if pathStream := normalizeStream(c.Param("stream")); pathStream != "" {
		streams = append(streams, pathStream)
	}
	for _, queryStream := range c.QueryArray("stream") {
		if normalized := normalizeStream(queryStream); normalized != "" {
			streams = append(streams, normalized)
		}
	}
	if raw := c.Query("streams"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if normalized := normalizeStream(part); normalized != "" {
				streams = append(streams, normalized)
			}
		}
	}

	return uniqueStreams(streams)
}

func normalizeStream(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func uniqueStreams(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
