// Package discord реализует доставку уведомлений получателям Discord:
// личные сообщения пользователям и сообщения в каналы серверов.
// Ошибки доставки типизированы, чтобы сервис доставки мог выбрать
// исход (повтор, блокировка, миграция, удаление).
package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"spotalert/pkg/ratelimit"
)

const discordBaseURL = "https://discord.com/api/v10"

var discordJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Sender - интерфейс отправителя сообщений Discord.
// Вынесен, чтобы сервис доставки тестировался без сети.
type Sender interface {
	// SendToUser отправляет личное сообщение пользователю
	SendToUser(ctx context.Context, userID int64, content string) error

	// SendToChannel отправляет сообщение в канал сервера.
	// channelID = 0 означает системный канал сервера.
	SendToChannel(ctx context.Context, serverID, channelID int64, content string) error

	// Close закрывает соединения клиента
	Close() error
}

// FailureKind классифицирует ошибку доставки
type FailureKind int

// Виды сбоев доставки
const (
	// FailureTransient - временная ошибка (сеть, 5xx, rate limit), повтор
	FailureTransient FailureKind = iota
	// FailureRecipientGone - получатель больше не существует
	FailureRecipientGone
	// FailureBlocked - пользователь заблокировал бота или закрыл личные сообщения
	FailureBlocked
	// FailureAccessRevoked - бот потерял доступ к серверу или каналу
	FailureAccessRevoked
)

// Коды ошибок Discord API
const (
	codeUnknownChannel   = 10003
	codeUnknownUser      = 10013
	codeUnknownGuild     = 10004
	codeMissingAccess    = 50001
	codeCannotSendToUser = 50007
)

// DeliveryError представляет типизированную ошибку доставки
type DeliveryError struct {
	Kind     FailureKind
	Code     int // код ошибки Discord API, 0 если недоступен
	Message  string
	Original error
}

func (e *DeliveryError) Error() string {
	return "discord: " + e.Message
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *DeliveryError) Unwrap() error {
	return e.Original
}

// Temporary возвращает true для временных ошибок (интеграция с pkg/retry)
func (e *DeliveryError) Temporary() bool {
	return e.Kind == FailureTransient
}

// KindOf возвращает вид сбоя доставки.
// Непознанные ошибки считаются временными: повтор безопаснее потери.
func KindOf(err error) FailureKind {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Kind
	}
	return FailureTransient
}

// Client - REST клиент Discord API для исходящих сообщений
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *ratelimit.RateLimiter
}

// NewClient создает новый клиент с bot-токеном
func NewClient(token string) *Client {
	return &Client{
		baseURL:    discordBaseURL,
		token:      token,
		httpClient: &http.Client{},
		// Глобальный лимит Discord - 50 req/sec на бота
		limiter: ratelimit.NewRateLimiter(40, 50),
	}
}

// SendToUser отправляет личное сообщение: сначала открывает DM канал,
// затем отправляет в него сообщение
func (c *Client) SendToUser(ctx context.Context, userID int64, content string) error {
	channel, err := c.openDMChannel(ctx, userID)
	if err != nil {
		return err
	}
	return c.postMessage(ctx, channel, content)
}

// SendToChannel отправляет сообщение в канал сервера
func (c *Client) SendToChannel(ctx context.Context, serverID, channelID int64, content string) error {
	if channelID == 0 {
		ch, err := c.systemChannel(ctx, serverID)
		if err != nil {
			return err
		}
		channelID = ch
	}
	return c.postMessage(ctx, channelID, content)
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// openDMChannel открывает (или возвращает существующий) DM канал пользователя
func (c *Client) openDMChannel(ctx context.Context, userID int64) (int64, error) {
	payload := map[string]string{"recipient_id": strconv.FormatInt(userID, 10)}

	body, err := c.doRequest(ctx, http.MethodPost, "/users/@me/channels", payload)
	if err != nil {
		return 0, err
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := discordJSON.Unmarshal(body, &resp); err != nil {
		return 0, &DeliveryError{Kind: FailureTransient, Message: "malformed channel response", Original: err}
	}
	id, err := strconv.ParseInt(resp.ID, 10, 64)
	if err != nil {
		return 0, &DeliveryError{Kind: FailureTransient, Message: "malformed channel id " + resp.ID, Original: err}
	}
	return id, nil
}

// systemChannel возвращает системный канал сервера
func (c *Client) systemChannel(ctx context.Context, serverID int64) (int64, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/guilds/"+strconv.FormatInt(serverID, 10), nil)
	if err != nil {
		return 0, err
	}

	var resp struct {
		SystemChannelID string `json:"system_channel_id"`
	}
	if err := discordJSON.Unmarshal(body, &resp); err != nil {
		return 0, &DeliveryError{Kind: FailureTransient, Message: "malformed guild response", Original: err}
	}
	if resp.SystemChannelID == "" {
		return 0, &DeliveryError{Kind: FailureAccessRevoked, Message: "server has no system channel"}
	}
	id, err := strconv.ParseInt(resp.SystemChannelID, 10, 64)
	if err != nil {
		return 0, &DeliveryError{Kind: FailureTransient, Message: "malformed channel id", Original: err}
	}
	return id, nil
}

func (c *Client) postMessage(ctx context.Context, channelID int64, content string) error {
	payload := map[string]string{"content": content}
	_, err := c.doRequest(ctx, http.MethodPost, "/channels/"+strconv.FormatInt(channelID, 10)+"/messages", payload)
	return err
}

// doRequest выполняет запрос к Discord API и классифицирует ошибки
func (c *Client) doRequest(ctx context.Context, method, endpoint string, payload interface{}) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := discordJSON.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &DeliveryError{Kind: FailureTransient, Message: err.Error(), Original: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DeliveryError{Kind: FailureTransient, Message: err.Error(), Original: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	var apiErr struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	_ = discordJSON.Unmarshal(body, &apiErr)

	return nil, &DeliveryError{
		Kind:    classify(resp.StatusCode, apiErr.Code),
		Code:    apiErr.Code,
		Message: fmt.Sprintf("HTTP %d (code %d): %s", resp.StatusCode, apiErr.Code, apiErr.Message),
	}
}

// classify переводит HTTP статус и код Discord в вид сбоя
func classify(status, code int) FailureKind {
	switch code {
	case codeCannotSendToUser:
		return FailureBlocked
	case codeUnknownUser:
		return FailureRecipientGone
	case codeUnknownGuild, codeUnknownChannel, codeMissingAccess:
		return FailureAccessRevoked
	}

	switch {
	case status == http.StatusForbidden:
		return FailureAccessRevoked
	case status == http.StatusNotFound:
		return FailureRecipientGone
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return FailureTransient
	}
	return FailureTransient
}

var _ Sender = (*Client)(nil)
