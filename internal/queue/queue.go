package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/order-relay/internal/domain"
)

// Publisher publishes job messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg JobMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg JobMessage) error

// Consumer consumes job messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

var supportedChannels = []domain.Channel{
	domain.ChannelSMS,
	domain.ChannelChatA,
	domain.ChannelChatB,
}

// QueueName returns the channel work queue name, e.g. sms or chat_a.
func QueueName(channel domain.Channel) string {
	return strings.ToLower(channel.String())
}

// DLQName returns the dead-letter queue name for a channel, e.g. dlq.sms.
func DLQName(channel domain.Channel) string {
	return fmt.Sprintf("dlq.%s", QueueName(channel))
}

// WorkQueueNames returns all channel work queues.
func WorkQueueNames() []string {
	queues := make([]string, 0, len(supportedChannels))
	for _, channel := range supportedChannels {
		queues = append(queues, QueueName(channel))
	}
	return queues
}

// DLQNames returns all dead-letter queues.
func DLQNames() []string {
	queues := make([]string, 0, len(supportedChannels))
	for _, channel := range supportedChannels {
		queues = append(queues, DLQName(channel))
	}
	return queues
}
