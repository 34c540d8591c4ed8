package webhook

import (
	"context"

	"github.com/mattjoyce/herald/internal/auth"
	"github.com/mattjoyce/herald/internal/delivery"
	"github.com/mattjoyce/herald/internal/storage"
)

// Deliverer is the delivery collaborator contract this server depends on.
type Deliverer interface {
	Deliver(ctx context.Context, sender auth.Bot, topic, body string) (*delivery.Receipt, error)
}

// MessageLister is the read slice of the message store used by the
// operational endpoints.
type MessageLister interface {
	Recent(ctx context.Context, limit int) ([]storage.Message, error)
	Count(ctx context.Context) (int, error)
}

// Config holds webhook server configuration.
type Config struct {
	Listen string

	// MaxBodySize is the maximum allowed request body size in bytes.
	MaxBodySize int64
}

// SuccessResponse is the envelope for successful webhook calls.
type SuccessResponse struct {
	Result string `json:"result"` // always "success"
	Msg    string `json:"msg"`    // always ""
}

// ErrorResponse is the envelope for failed calls.
type ErrorResponse struct {
	Result string `json:"result"` // always "error"
	Msg    string `json:"msg"`
	Code   string `json:"code"`
}

// Error codes carried in ErrorResponse.Code.
const (
	CodeInvalidAPIKey      = "INVALID_API_KEY"
	CodeUnknownIntegration = "UNKNOWN_INTEGRATION"
	CodeBadEventPayload    = "BAD_EVENT_PAYLOAD"
	CodeRequestTooLarge    = "REQUEST_TOO_LARGE"
	CodeRateLimited        = "RATE_LIMITED"
	CodeDeliveryFailed     = "DELIVERY_FAILED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// MessagesResponse is returned by GET /api/v1/messages.
type MessagesResponse struct {
	Result   string            `json:"result"`
	Msg      string            `json:"msg"`
	Messages []storage.Message `json:"messages"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status            string `json:"status"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
	MessagesDelivered int    `json:"messages_delivered"`
	BotsLoaded        int    `json:"bots_loaded"`
}

// DefaultMaxBodySize caps webhook bodies when config leaves it unset.
const DefaultMaxBodySize = 1048576 // 1 MB
