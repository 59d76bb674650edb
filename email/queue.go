package email

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
)

// Message is the queue payload consumed by the mail relay.
type Message struct {
	Template   string            `json:"template"`
	To         string            `json:"to"`
	Params     map[string]string `json:"params"`
	EnqueuedAt time.Time         `json:"enqueuedAt"`
}

type messageQueue interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// QueueClient writes email messages to an Azure storage queue.
type QueueClient struct {
	queue messageQueue
}

func NewQueueClient(connStr, queueName string) (*QueueClient, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Second * 30,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	return &QueueClient{queue: q}, nil
}

func (c *QueueClient) Deliver(ctx context.Context, msg Message) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = c.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}
