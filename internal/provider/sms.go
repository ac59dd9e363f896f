package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kursadbilgin/order-relay/internal/domain"
)

const defaultGatewayTimeout = 10 * time.Second

type smsSendRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Content string `json:"content"`
}

type smsSendResponse struct {
	MessageID string `json:"message_id"`
}

type smsBalanceResponse struct {
	Balance float64 `json:"balance"`
}

type smsSendersResponse struct {
	Senders []string `json:"senders"`
}

// SMSProvider sends text messages through an HTTP SMS gateway.
type SMSProvider struct {
	client       *resty.Client
	baseURL      string
	senderNumber string
}

func NewSMSProvider(baseURL, apiKey, senderNumber string) (*SMSProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultGatewayTimeout)
	client.SetRetryCount(0)
	if strings.TrimSpace(apiKey) != "" {
		client.SetHeader("Authorization", "Bearer "+strings.TrimSpace(apiKey))
	}

	return NewSMSProviderWithClient(baseURL, senderNumber, client)
}

func NewSMSProviderWithClient(baseURL, senderNumber string, client *resty.Client) (*SMSProvider, error) {
	trimmedURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedURL == "" {
		return nil, fmt.Errorf("sms gateway url is required")
	}
	if _, err := url.ParseRequestURI(trimmedURL); err != nil {
		return nil, fmt.Errorf("invalid sms gateway url: %w", err)
	}
	if strings.TrimSpace(senderNumber) == "" {
		return nil, fmt.Errorf("sms sender number is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultGatewayTimeout)
	}
	client.SetRetryCount(0)

	return &SMSProvider{
		client:       client,
		baseURL:      trimmedURL,
		senderNumber: strings.TrimSpace(senderNumber),
	}, nil
}

func (p *SMSProvider) Name() string            { return "sms_gateway" }
func (p *SMSProvider) Channel() domain.Channel { return domain.ChannelSMS }

func (p *SMSProvider) Send(ctx context.Context, msg Message) (*ProviderResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}

	sender := msg.Sender
	if sender == "" {
		sender = p.senderNumber
	}

	var parsed smsSendResponse
	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(smsSendRequest{
			To:      msg.Recipient,
			From:    sender,
			Content: msg.Content,
		}).
		SetResult(&parsed).
		Post(p.baseURL + "/v1/messages")
	if err != nil {
		return nil, &ProviderError{
			Message:   "sms gateway request failed",
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

// Probe checks the account balance endpoint and verifies the configured
// sender number is registered with the gateway.
func (p *SMSProvider) Probe(ctx context.Context) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("provider is not initialized")
	}

	var balance smsBalanceResponse
	response, err := p.client.R().
		SetContext(ctx).
		SetResult(&balance).
		Get(p.baseURL + "/v1/balance")
	if err != nil {
		return &ProviderError{Message: "balance check failed", Transient: true, Cause: err}
	}
	if response.StatusCode() != http.StatusOK {
		return &ProviderError{
			StatusCode: response.StatusCode(),
			Message:    gatewayErrorMessage(response.StatusCode(), strings.TrimSpace(response.String())),
			Transient:  isTransientHTTPStatus(response.StatusCode()),
		}
	}

	var senders smsSendersResponse
	response, err = p.client.R().
		SetContext(ctx).
		SetResult(&senders).
		Get(p.baseURL + "/v1/senders")
	if err != nil {
		return &ProviderError{Message: "sender listing failed", Transient: true, Cause: err}
	}
	if response.StatusCode() != http.StatusOK {
		return &ProviderError{
			StatusCode: response.StatusCode(),
			Message:    gatewayErrorMessage(response.StatusCode(), strings.TrimSpace(response.String())),
			Transient:  isTransientHTTPStatus(response.StatusCode()),
		}
	}

	for _, s := range senders.Senders {
		if s == p.senderNumber {
			return nil
		}
	}
	return &ProviderError{
		Message:   fmt.Sprintf("sender number %s is not registered with the gateway", p.senderNumber),
		Transient: false,
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func gatewayErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("gateway returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func headerMessageID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Message-ID", "X-Message-Id", "X-Request-ID", "X-Request-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
