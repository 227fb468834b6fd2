package lark

import (
	"bytes"
	"context"
	"fmt"

	larkIm "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
)

// MessageAPI is the subset of the IM API the messenger needs
type MessageAPI interface {
	SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error)
	UploadFile(ctx context.Context, fileName string, content []byte) (string, error)
}

// sdkMessageAPI handles Lark messaging operations through the SDK
type sdkMessageAPI struct {
	client *SDKClient
	logger *zap.Logger
}

// NewMessageAPI creates a new message API handler
func NewMessageAPI(client *SDKClient, logger *zap.Logger) MessageAPI {
	return &sdkMessageAPI{
		client: client,
		logger: logger,
	}
}

// SendMessage sends a message to a user or group
func (m *sdkMessageAPI) SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error) {
	req := larkIm.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDType).
		Body(larkIm.NewCreateMessageReqBodyBuilder().
			ReceiveId(receiveID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	resp, err := m.client.GetClient().Im.Message.Create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message",
			zap.String("receive_id", receiveID),
			zap.Error(err))
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("receive_id", receiveID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return "", fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}

	m.logger.Debug("Message sent",
		zap.String("message_id", messageID),
		zap.String("receive_id", receiveID))

	return messageID, nil
}

// UploadFile uploads a PDF and returns its file key
func (m *sdkMessageAPI) UploadFile(ctx context.Context, fileName string, content []byte) (string, error) {
	req := larkIm.NewCreateFileReqBuilder().
		Body(larkIm.NewCreateFileReqBodyBuilder().
			FileType("pdf").
			FileName(fileName).
			File(bytes.NewReader(content)).
			Build()).
		Build()

	resp, err := m.client.GetClient().Im.File.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}
	if resp.Data == nil || resp.Data.FileKey == nil {
		return "", fmt.Errorf("upload of %s returned no file key", fileName)
	}
	return *resp.Data.FileKey, nil
}
