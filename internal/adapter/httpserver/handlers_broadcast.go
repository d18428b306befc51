package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/relay/internal/domain"
	apperrors "github.com/pscheid92/relay/internal/platform/errors"
)

type broadcastRequest struct {
	Message *string `json:"message"`
}

type broadcastResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// handleBroadcast publishes the payload to every client in the fleet. The
// response only confirms the publish, not delivery.
func (s *Server) handleBroadcast(c echo.Context) error {
	var req broadcastRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid JSON body")
	}
	if req.Message == nil {
		return apperrors.UnprocessableError("message is required").WithField("field", "message")
	}
	if err := domain.ValidateBroadcast(*req.Message); err != nil {
		return apperrors.UnprocessableError("Message cannot be empty").WithField("field", "message")
	}

	if err := s.publisher.Publish(c.Request().Context(), *req.Message); err != nil {
		return apperrors.ExternalError("failed to publish broadcast", err)
	}

	if err := c.JSON(http.StatusOK, broadcastResponse{Status: "sent", Message: *req.Message}); err != nil {
		return fmt.Errorf("failed to write broadcast response: %w", err)
	}
	return nil
}
