package lark

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/mutation-workflow/internal/application/port"
)

// Channel is the notification channel name of the messenger
const Channel = "lark"

// Messenger implements port.Mailer over Lark IM, addressing the recipient by
// email
type Messenger struct {
	api    MessageAPI
	logger *zap.Logger
}

// NewMessenger creates a new Lark notification channel
func NewMessenger(api MessageAPI, logger *zap.Logger) *Messenger {
	return &Messenger{
		api:    api,
		logger: logger,
	}
}

// Channel returns the channel name
func (m *Messenger) Channel() string {
	return Channel
}

// Send posts the subject and body as a rich text message, then each
// attachment as a file message
func (m *Messenger) Send(ctx context.Context, msg *port.Message) error {
	if msg == nil || msg.To == "" {
		return fmt.Errorf("recipient cannot be empty")
	}

	content, err := postContent(msg.Subject, msg.Body)
	if err != nil {
		return err
	}
	if _, err := m.api.SendMessage(ctx, "email", msg.To, "post", content); err != nil {
		return err
	}

	for _, att := range msg.Attachments {
		fileKey, err := m.api.UploadFile(ctx, att.Name, att.Content)
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", att.Name, err)
		}
		fileContent, err := json.Marshal(map[string]string{"file_key": fileKey})
		if err != nil {
			return fmt.Errorf("failed to marshal file content: %w", err)
		}
		if _, err := m.api.SendMessage(ctx, "email", msg.To, "file", string(fileContent)); err != nil {
			return fmt.Errorf("failed to send %s: %w", att.Name, err)
		}
	}

	m.logger.Info("Lark notification sent",
		zap.String("to", msg.To),
		zap.Int("attachments", len(msg.Attachments)))
	return nil
}

type postElement struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

type postBody struct {
	Title   string          `json:"title"`
	Content [][]postElement `json:"content"`
}

func postContent(subject, body string) (string, error) {
	content, err := json.Marshal(map[string]postBody{
		"fr_fr": {
			Title:   subject,
			Content: [][]postElement{{{Tag: "text", Text: body}}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal post content: %w", err)
	}
	return string(content), nil
}
