package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/pkg/logger"
)

// Batch is the events normalized from one webhook request, in the order the
// provider sent them. It is the unit queued between ingest and dispatch.
type Batch struct {
	ESP        domain.ESPType         `json:"esp"`
	ReceivedAt time.Time              `json:"received_at"`
	Events     []domain.TrackingEvent `json:"events"`
}

// Sink accepts normalized batches from the webhook handler. A returned error
// makes the handler answer 5xx so the provider redelivers.
type Sink interface {
	Ingest(ctx context.Context, b Batch) error
}

// Dispatcher applies tracking events to recipients.
type Dispatcher interface {
	DispatchBatch(ctx context.Context, events []domain.TrackingEvent) error
}

// InlineSink dispatches batches inside the webhook request.
type InlineSink struct {
	dispatcher Dispatcher
}

// NewInlineSink creates a sink that dispatches synchronously.
func NewInlineSink(d Dispatcher) *InlineSink {
	return &InlineSink{dispatcher: d}
}

func (s *InlineSink) Ingest(ctx context.Context, b Batch) error {
	return s.dispatcher.DispatchBatch(ctx, b.Events)
}

// sqsAPI is the subset of the SQS client used by the publisher and consumer.
type sqsAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, opts ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, opts ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, opts ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Publisher queues batches on SQS for the worker to dispatch.
type Publisher struct {
	client   sqsAPI
	queueURL string
	timeout  time.Duration
}

// NewPublisher creates an SQS-backed sink.
func NewPublisher(client sqsAPI, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL, timeout: 5 * time.Second}
}

// Ingest sends b as one SQS message. It waits for SQS to accept the message
// so that a failure reaches the provider as a retryable error.
func (p *Publisher) Ingest(ctx context.Context, b Batch) error {
	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal tracking batch: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"esp": {DataType: aws.String("String"), StringValue: aws.String(string(b.ESP))},
		},
	})
	if err != nil {
		return fmt.Errorf("publish tracking batch: %w", err)
	}

	logger.Debug("tracking batch queued", "esp", b.ESP, "events", len(b.Events),
		"sqs_message_id", aws.ToString(out.MessageId))
	return nil
}
