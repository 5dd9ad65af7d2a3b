package lark

import (
	"context"
	"encoding/json"
	"fmt"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkIm "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/trip-approval/internal/domain/entity"
)

const defaultReceiveIDType = "open_id"

// messageCreator is the slice of the IM API the sink uses
type messageCreator interface {
	Create(ctx context.Context, req *larkIm.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkIm.CreateMessageResp, error)
}

// NotificationSink delivers workflow notifications as Lark IM text messages
type NotificationSink struct {
	messages      messageCreator
	receiveIDType string
	logger        *zap.Logger
}

// NewNotificationSink creates a sink sending through client
func NewNotificationSink(client *SDKClient, cfg Config, logger *zap.Logger) *NotificationSink {
	return newNotificationSink(client.GetClient().Im.Message, cfg.ReceiveIDType, logger)
}

func newNotificationSink(messages messageCreator, receiveIDType string, logger *zap.Logger) *NotificationSink {
	if receiveIDType == "" {
		receiveIDType = defaultReceiveIDType
	}
	return &NotificationSink{
		messages:      messages,
		receiveIDType: receiveIDType,
		logger:        logger,
	}
}

// Name identifies the sink in logs
func (s *NotificationSink) Name() string {
	return "lark"
}

// Send posts title and message to userID
func (s *NotificationSink) Send(ctx context.Context, userID, bookingID string, t entity.NotificationType, title, message string) error {
	if userID == "" {
		return fmt.Errorf("lark: user id cannot be empty")
	}

	body, err := messageBody(userID, title, message)
	if err != nil {
		return err
	}

	req := larkIm.NewCreateMessageReqBuilder().
		ReceiveIdType(s.receiveIDType).
		Body(body).
		Build()

	resp, err := s.messages.Create(ctx, req)
	if err != nil {
		s.logger.Error("Failed to send message",
			zap.String("receive_id", userID),
			zap.String("booking_id", bookingID),
			zap.Error(err))
		return fmt.Errorf("lark: send message: %w", err)
	}
	if !resp.Success() {
		s.logger.Error("API returned failure",
			zap.String("receive_id", userID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("lark: API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}
	s.logger.Debug("Message sent",
		zap.String("message_id", messageID),
		zap.String("receive_id", userID),
		zap.String("type", string(t)))
	return nil
}

// messageBody builds the text message addressed to userID
func messageBody(userID, title, message string) (*larkIm.CreateMessageReqBody, error) {
	content, err := textContent(title, message)
	if err != nil {
		return nil, err
	}
	return larkIm.NewCreateMessageReqBodyBuilder().
		ReceiveId(userID).
		MsgType("text").
		Content(content).
		Build(), nil
}

// textContent builds the JSON body of a text message
func textContent(title, message string) (string, error) {
	text := message
	if title != "" {
		text = title + "\n" + message
	}
	b, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("lark: encode message: %w", err)
	}
	return string(b), nil
}
