// Package telegram implements the messaging gateway on the Telegram
// Bot API.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/wonny/mtfscan/backend/internal/contracts"
	"github.com/wonny/mtfscan/backend/pkg/config"
	"github.com/wonny/mtfscan/backend/pkg/httputil"
	"github.com/wonny/mtfscan/backend/pkg/logger"
)

// Messenger sends and deletes bot messages.
type Messenger struct {
	baseURL    string
	token      string
	httpClient *httputil.Client
	logger     *logger.Logger
}

// New creates a Telegram messenger.
func New(cfg *config.Config, log *logger.Logger, httpClient *httputil.Client) *Messenger {
	return &Messenger{
		baseURL:    strings.TrimRight(cfg.Telegram.BaseURL, "/"),
		token:      cfg.Telegram.BotToken,
		httpClient: httpClient,
		logger:     log,
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

type sentMessage struct {
	MessageID int64 `json:"message_id"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

// SendEphemeral sends a plain-text message and returns its reference
// for later deletion.
func (m *Messenger) SendEphemeral(ctx context.Context, recipient int64, text string) (contracts.MessageRef, error) {
	payload := map[string]interface{}{
		"chat_id":                  recipient,
		"text":                     text,
		"disable_web_page_preview": true,
	}

	var sent sentMessage
	if err := m.call(ctx, "sendMessage", payload, &sent); err != nil {
		return contracts.MessageRef{}, fmt.Errorf("send message to %d: %w", recipient, err)
	}

	return contracts.MessageRef{ChatID: sent.Chat.ID, MessageID: sent.MessageID}, nil
}

// Delete removes a previously sent message.
func (m *Messenger) Delete(ctx context.Context, ref contracts.MessageRef) error {
	payload := map[string]interface{}{
		"chat_id":    ref.ChatID,
		"message_id": ref.MessageID,
	}
	return m.call(ctx, "deleteMessage", payload, nil)
}

// call posts one Bot API method and decodes the result envelope.
func (m *Messenger) call(ctx context.Context, method string, payload interface{}, result interface{}) error {
	url := fmt.Sprintf("%s/bot%s/%s", m.baseURL, m.token, method)

	resp, err := m.httpClient.PostJSON(ctx, url, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &httputil.StatusError{Code: resp.StatusCode, Body: string(body)}
		}
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("telegram %s failed: %s", method, envelope.Description)
	}

	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}
