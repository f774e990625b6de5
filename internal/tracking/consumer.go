package tracking

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ignite/mailtrack/internal/config"
	"github.com/ignite/mailtrack/internal/pkg/logger"
)

// Consumer long-polls the tracking queue and dispatches each batch. A
// message is deleted only after its batch dispatched cleanly; otherwise SQS
// redelivers it after the visibility timeout.
type Consumer struct {
	client      sqsAPI
	queueURL    string
	dispatcher  Dispatcher
	waitTime    int32
	maxMessages int32
	visibility  int32
	errBackoff  time.Duration

	done chan struct{}
	wg   sync.WaitGroup
}

// NewConsumer creates a consumer for cfg.QueueURL.
func NewConsumer(client sqsAPI, cfg config.SQSConfig, dispatcher Dispatcher) *Consumer {
	return &Consumer{
		client:      client,
		queueURL:    cfg.QueueURL,
		dispatcher:  dispatcher,
		waitTime:    cfg.WaitTimeSeconds,
		maxMessages: cfg.MaxMessages,
		visibility:  cfg.VisibilityTimeout,
		errBackoff:  5 * time.Second,
		done:        make(chan struct{}),
	}
}

func (c *Consumer) Start(ctx context.Context) {
	logger.Info("tracking consumer started", "queue", c.queueURL)
	c.wg.Add(1)
	go c.poll(ctx)
}

// Stop ends polling and waits for the in-flight receive to finish.
func (c *Consumer) Stop() {
	close(c.done)
	c.wg.Wait()
}

func (c *Consumer) poll(ctx context.Context) {
	defer c.wg.Done()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for ctx.Err() == nil {
		if _, err := c.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("tracking queue receive failed", "error", err)
			select {
			case <-time.After(c.errBackoff):
			case <-ctx.Done():
			}
		}
	}
}

// PollOnce receives one round of messages and processes them. It returns the
// number of messages deleted.
func (c *Consumer) PollOnce(ctx context.Context) (int, error) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: c.maxMessages,
		WaitTimeSeconds:     c.waitTime,
		VisibilityTimeout:   c.visibility,
	})
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, msg := range out.Messages {
		if c.process(ctx, msg) {
			if err := c.deleteMessage(ctx, msg.ReceiptHandle); err != nil {
				logger.Error("tracking queue delete failed", "sqs_message_id", aws.ToString(msg.MessageId), "error", err)
				continue
			}
			deleted++
		}
	}
	return deleted, nil
}

// process reports whether msg is finished with and can be deleted.
func (c *Consumer) process(ctx context.Context, msg types.Message) bool {
	log := logger.With("sqs_message_id", aws.ToString(msg.MessageId))

	var b Batch
	if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &b); err != nil {
		log.Error("tracking queue bad message", "error", err)
		return true
	}

	if err := c.dispatcher.DispatchBatch(ctx, b.Events); err != nil {
		log.Error("tracking batch dispatch failed", "esp", b.ESP, "events", len(b.Events), "error", err)
		return false
	}

	log.Debug("tracking batch dispatched", "esp", b.ESP, "events", len(b.Events),
		"lag", time.Since(b.ReceivedAt).Round(time.Millisecond))
	return true
}

func (c *Consumer) deleteMessage(ctx context.Context, handle *string) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	})
	return err
}
