package notify

import (
	"context"

	"go.uber.org/zap"

	"joinpounce/internal/app/dao"
	"joinpounce/internal/similarity"
)

// Message is what reaches the user's device.
type Message struct {
	NotificationID string               `json:"notification_id"`
	UserID         string               `json:"user_id"`
	ItemID         string               `json:"item_id"`
	Type           dao.NotificationType `json:"type"`
	Title          string               `json:"title"`
	Body           string               `json:"body"`
	URL            string               `json:"url,omitempty"`
	Suggestions    []similarity.Product `json:"suggestions,omitempty"`
}

// Pusher delivers a message to a user. Delivery providers plug in here.
type Pusher interface {
	Push(ctx context.Context, msg Message) error
}

// LogPusher writes messages to the log instead of a device.
type LogPusher struct {
	logger *zap.SugaredLogger
}

func NewLogPusher(logger *zap.SugaredLogger) *LogPusher {
	return &LogPusher{logger: logger}
}

func (p *LogPusher) Push(ctx context.Context, msg Message) error {
	p.logger.Infow("push_delivered",
		"notification_id", msg.NotificationID,
		"user_id", msg.UserID,
		"item_id", msg.ItemID,
		"type", msg.Type,
		"title", msg.Title,
		"url", msg.URL,
		"suggestions", len(msg.Suggestions),
	)
	return nil
}
