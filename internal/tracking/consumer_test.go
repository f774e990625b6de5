package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailtrack/internal/config"
	"github.com/ignite/mailtrack/internal/domain"
)

// fakeSQS is an in-memory queue. Received messages stay queued until deleted.
type fakeSQS struct {
	mu         sync.Mutex
	seq        int
	queue      map[string]types.Message // keyed by receipt handle
	order      []string
	sent       []*sqs.SendMessageInput
	receiveErr error
}

func newFakeSQS() *fakeSQS {
	return &fakeSQS{queue: make(map[string]types.Message)}
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, in)
	f.push(aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{MessageId: aws.String(fmt.Sprintf("m-%d", f.seq))}, nil
}

func (f *fakeSQS) push(body string) {
	f.seq++
	handle := fmt.Sprintf("h-%d", f.seq)
	f.queue[handle] = types.Message{
		MessageId:     aws.String(fmt.Sprintf("m-%d", f.seq)),
		ReceiptHandle: aws.String(handle),
		Body:          aws.String(body),
	}
	f.order = append(f.order, handle)
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receiveErr != nil {
		return nil, f.receiveErr
	}
	out := &sqs.ReceiveMessageOutput{}
	for _, h := range f.order {
		if msg, ok := f.queue[h]; ok {
			out.Messages = append(out.Messages, msg)
			if int32(len(out.Messages)) == in.MaxNumberOfMessages {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.queue, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

type fakeDispatcher struct {
	mu      sync.Mutex
	batches [][]domain.TrackingEvent
	err     error
}

func (d *fakeDispatcher) DispatchBatch(_ context.Context, events []domain.TrackingEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.batches = append(d.batches, events)
	return nil
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batches)
}

func testSQSConfig() config.SQSConfig {
	return config.SQSConfig{QueueURL: "https://sqs.local/tracking", MaxMessages: 10, WaitTimeSeconds: 0, VisibilityTimeout: 30}
}

func sampleBatch() Batch {
	ts := time.Unix(100, 0).UTC()
	return Batch{
		ESP:        domain.ESPSendGrid,
		ReceivedAt: time.Now().UTC(),
		Events: []domain.TrackingEvent{
			{ESP: domain.ESPSendGrid, Kind: domain.EventDelivered, Timestamp: &ts, CorrelationID: "m1", Recipient: "a@example.com"},
		},
	}
}

func TestPublisherThenConsumer(t *testing.T) {
	ctx := context.Background()
	q := newFakeSQS()

	require.NoError(t, NewPublisher(q, "https://sqs.local/tracking").Ingest(ctx, sampleBatch()))
	require.Len(t, q.sent, 1)
	assert.Equal(t, "sendgrid", aws.ToString(q.sent[0].MessageAttributes["esp"].StringValue))

	d := &fakeDispatcher{}
	n, err := NewConsumer(q, testSQSConfig(), d).PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, q.pending())

	require.Len(t, d.batches, 1)
	evt := d.batches[0][0]
	assert.Equal(t, domain.EventDelivered, evt.Kind)
	assert.Equal(t, "m1", evt.CorrelationID)
	require.NotNil(t, evt.Timestamp)
	assert.Equal(t, int64(100), evt.Timestamp.Unix())
}

func TestConsumerKeepsFailedBatches(t *testing.T) {
	ctx := context.Background()
	q := newFakeSQS()
	require.NoError(t, NewPublisher(q, "u").Ingest(ctx, sampleBatch()))

	d := &fakeDispatcher{err: errors.New("db unavailable")}
	n, err := NewConsumer(q, testSQSConfig(), d).PollOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, q.pending())
}

func TestConsumerDropsUnreadableMessages(t *testing.T) {
	q := newFakeSQS()
	q.push("not json")

	d := &fakeDispatcher{}
	n, err := NewConsumer(q, testSQSConfig(), d).PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, q.pending())
	assert.Zero(t, d.count())
}

func TestConsumerReceiveError(t *testing.T) {
	q := newFakeSQS()
	q.receiveErr = errors.New("throttled")
	_, err := NewConsumer(q, testSQSConfig(), &fakeDispatcher{}).PollOnce(context.Background())
	assert.Error(t, err)
}

func TestConsumerStartStop(t *testing.T) {
	q := newFakeSQS()
	require.NoError(t, NewPublisher(q, "u").Ingest(context.Background(), sampleBatch()))

	d := &fakeDispatcher{}
	c := NewConsumer(q, testSQSConfig(), d)
	c.Start(context.Background())

	require.Eventually(t, func() bool { return d.count() >= 1 }, time.Second, 5*time.Millisecond)
	c.Stop()
	assert.Zero(t, q.pending())
}

func TestInlineSink(t *testing.T) {
	d := &fakeDispatcher{}
	require.NoError(t, NewInlineSink(d).Ingest(context.Background(), sampleBatch()))
	assert.Equal(t, 1, d.count())
}
