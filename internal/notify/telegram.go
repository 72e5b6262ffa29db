// Package notify is the outbound notification channel. The production
// implementation speaks the Telegram Bot API over HTTP; every operation is
// independently failable and callers treat deliveries as best-effort.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"photobot/internal/infra"
)

// Channel is the messaging surface consumed by the lifecycle components.
type Channel interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) (int64, error)
	SendDocument(ctx context.Context, chatID int64, doc Document) (SentDocument, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	EditReplyMarkup(ctx context.Context, chatID, messageID int64, markup *InlineKeyboardMarkup) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	AnswerCallback(ctx context.Context, callbackID, text string, showAlert bool) error
	DownloadFile(ctx context.Context, fileRef string) ([]byte, error)
}

// BotAPI implements Channel against the Telegram Bot API.
type BotAPI struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     infra.Logger
}

// NewBotAPI constructs a Bot API client. A nil HTTP client gets a default with
// a timeout wide enough for long polling.
func NewBotAPI(token, baseURL string, httpClient *http.Client, logger infra.Logger) *BotAPI {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &BotAPI{
		token:      token,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
}

func (b *BotAPI) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("notify: encode %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.methodURL(method), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return b.do(req, method, out)
}

func (b *BotAPI) do(req *http.Request, method string, out any) error {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: call %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("notify: read %s response: %w", method, err)
	}
	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("notify: decode %s response: %w", method, err)
	}
	if !parsed.OK {
		return fmt.Errorf("notify: %s failed: %d %s", method, parsed.ErrorCode, parsed.Description)
	}
	if out != nil {
		if err := json.Unmarshal(parsed.Result, out); err != nil {
			return fmt.Errorf("notify: decode %s result: %w", method, err)
		}
	}
	return nil
}

func (b *BotAPI) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", b.baseURL, b.token, method)
}

// SendMessage sends a text message, optionally with an inline keyboard, and
// returns the new message id.
func (b *BotAPI) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) (int64, error) {
	params := map[string]any{"chat_id": chatID, "text": text}
	if markup != nil {
		params["reply_markup"] = markup
	}
	var msg Message
	if err := b.call(ctx, "sendMessage", params, &msg); err != nil {
		return 0, err
	}
	return msg.ID, nil
}

type sentDocumentResult struct {
	ID       int64 `json:"message_id"`
	Document *struct {
		FileID string `json:"file_id"`
	} `json:"document,omitempty"`
}

// SendDocument delivers a document either by reference or by uploading bytes.
func (b *BotAPI) SendDocument(ctx context.Context, chatID int64, doc Document) (SentDocument, error) {
	if len(doc.Data) == 0 {
		params := map[string]any{"chat_id": chatID, "document": doc.FileRef}
		if doc.Caption != "" {
			params["caption"] = doc.Caption
		}
		var result sentDocumentResult
		if err := b.call(ctx, "sendDocument", params, &result); err != nil {
			return SentDocument{}, err
		}
		return sentDocumentFrom(result), nil
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return SentDocument{}, fmt.Errorf("notify: build upload: %w", err)
	}
	if doc.Caption != "" {
		if err := writer.WriteField("caption", doc.Caption); err != nil {
			return SentDocument{}, fmt.Errorf("notify: build upload: %w", err)
		}
	}
	part, err := writer.CreateFormFile("document", doc.Name)
	if err != nil {
		return SentDocument{}, fmt.Errorf("notify: build upload: %w", err)
	}
	if _, err := part.Write(doc.Data); err != nil {
		return SentDocument{}, fmt.Errorf("notify: build upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return SentDocument{}, fmt.Errorf("notify: build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.methodURL("sendDocument"), &body)
	if err != nil {
		return SentDocument{}, fmt.Errorf("notify: build sendDocument: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result sentDocumentResult
	if err := b.do(req, "sendDocument", &result); err != nil {
		return SentDocument{}, err
	}
	return sentDocumentFrom(result), nil
}

func sentDocumentFrom(result sentDocumentResult) SentDocument {
	sent := SentDocument{MessageID: result.ID}
	if result.Document != nil {
		sent.FileID = result.Document.FileID
	}
	return sent
}

// EditMessageText replaces a message's text.
func (b *BotAPI) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	return b.call(ctx, "editMessageText", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}, nil)
}

// EditReplyMarkup swaps a message's inline keyboard.
func (b *BotAPI) EditReplyMarkup(ctx context.Context, chatID, messageID int64, markup *InlineKeyboardMarkup) error {
	params := map[string]any{"chat_id": chatID, "message_id": messageID}
	if markup != nil {
		params["reply_markup"] = markup
	}
	return b.call(ctx, "editMessageReplyMarkup", params, nil)
}

// DeleteMessage removes a message.
func (b *BotAPI) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return b.call(ctx, "deleteMessage", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}, nil)
}

// AnswerCallback acknowledges a button press, optionally with an alert popup.
func (b *BotAPI) AnswerCallback(ctx context.Context, callbackID, text string, showAlert bool) error {
	params := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		params["text"] = text
	}
	if showAlert {
		params["show_alert"] = true
	}
	return b.call(ctx, "answerCallbackQuery", params, nil)
}

// DownloadFile resolves a file reference and fetches its bytes.
func (b *BotAPI) DownloadFile(ctx context.Context, fileRef string) ([]byte, error) {
	var info struct {
		FilePath string `json:"file_path"`
	}
	if err := b.call(ctx, "getFile", map[string]any{"file_id": fileRef}, &info); err != nil {
		return nil, err
	}
	if info.FilePath == "" {
		return nil, fmt.Errorf("notify: getFile returned no path for %q", fileRef)
	}

	url := fmt.Sprintf("%s/file/bot%s/%s", b.baseURL, b.token, info.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("notify: build download: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("notify: download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("notify: download file: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("notify: read file: %w", err)
	}
	return data, nil
}

// GetUpdates long-polls for updates past the given offset.
func (b *BotAPI) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	var updates []Update
	err := b.call(ctx, "getUpdates", map[string]any{
		"offset":  offset,
		"timeout": int(timeout.Seconds()),
	}, &updates)
	if err != nil {
		return nil, err
	}
	return updates, nil
}

var _ Channel = (*BotAPI)(nil)
