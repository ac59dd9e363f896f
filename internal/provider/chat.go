package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/kursadbilgin/order-relay/internal/domain"
)

type chatSendRequest struct {
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
	Profile   string `json:"profile,omitempty"`
}

type chatSendResponse struct {
	MessageID string `json:"message_id"`
}

// ChatProvider sends messages through a chat platform HTTP gateway. The
// same implementation backs both chat channels, differing only in name,
// channel and endpoint.
type ChatProvider struct {
	client  *resty.Client
	name    string
	channel domain.Channel
	baseURL string
	profile string
}

func NewChatProvider(name string, channel domain.Channel, baseURL, apiKey, profile string) (*ChatProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultGatewayTimeout)
	client.SetRetryCount(0)
	if strings.TrimSpace(apiKey) != "" {
		client.SetHeader("Authorization", "Bearer "+strings.TrimSpace(apiKey))
	}

	return NewChatProviderWithClient(name, channel, baseURL, profile, client)
}

func NewChatProviderWithClient(name string, channel domain.Channel, baseURL, profile string, client *resty.Client) (*ChatProvider, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("chat provider name is required")
	}
	if !channel.IsValid() {
		return nil, fmt.Errorf("invalid chat channel: %s", channel)
	}

	trimmedURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedURL == "" {
		return nil, fmt.Errorf("chat gateway url is required")
	}
	if _, err := url.ParseRequestURI(trimmedURL); err != nil {
		return nil, fmt.Errorf("invalid chat gateway url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultGatewayTimeout)
	}
	client.SetRetryCount(0)

	return &ChatProvider{
		client:  client,
		name:    strings.TrimSpace(name),
		channel: channel,
		baseURL: trimmedURL,
		profile: strings.TrimSpace(profile),
	}, nil
}

func (p *ChatProvider) Name() string            { return p.name }
func (p *ChatProvider) Channel() domain.Channel { return p.channel }

func (p *ChatProvider) Send(ctx context.Context, msg Message) (*ProviderResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}

	var parsed chatSendResponse
	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(chatSendRequest{
			Recipient: msg.Recipient,
			Text:      msg.Content,
			Profile:   p.profile,
		}).
		SetResult(&parsed).
		Post(p.baseURL + "/v1/send")
	if err != nil {
		return nil, &ProviderError{
			Message:   "chat gateway request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		messageID := parsed.MessageID
		if messageID == "" {
			messageID = headerMessageID(response)
		}
		return &ProviderResponse{
			StatusCode: statusCode,
			Body:       responseBody,
			MessageID:  messageID,
		}, nil
	}

	return nil, &ProviderError{
		StatusCode: statusCode,
		Message:    gatewayErrorMessage(statusCode, responseBody),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func (p *ChatProvider) Probe(ctx context.Context) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("provider is not initialized")
	}

	response, err := p.client.R().
		SetContext(ctx).
		Get(p.baseURL + "/v1/profile")
	if err != nil {
		return &ProviderError{Message: "profile check failed", Transient: true, Cause: err}
	}
	if response.StatusCode() != http.StatusOK {
		return &ProviderError{
			StatusCode: response.StatusCode(),
			Message:    gatewayErrorMessage(response.StatusCode(), strings.TrimSpace(response.String())),
			Transient:  isTransientHTTPStatus(response.StatusCode()),
		}
	}
	return nil
}
