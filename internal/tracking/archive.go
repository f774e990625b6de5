package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"

	"github.com/ignite/mailtrack/internal/pkg/logger"
)

// dynamoAPI is the subset of the DynamoDB client used by the archive.
type dynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// archiveItem is one webhook batch as stored in DynamoDB. Items are
// partitioned per provider and UTC day.
type archiveItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	ESP       string `dynamodbav:"ESP"`
	Events    int    `dynamodbav:"Events"`
	Data      string `dynamodbav:"Data"`
	Timestamp string `dynamodbav:"Timestamp"`
	TTL       int64  `dynamodbav:"TTL,omitempty"`
}

// ArchiveSink records every batch in DynamoDB before passing it on. Archive
// failures are logged and never block ingestion.
type ArchiveSink struct {
	next      Sink
	client    dynamoAPI
	table     string
	retention time.Duration
}

// NewArchiveSink wraps next. retention sets the item TTL; zero keeps items
// until removed by hand.
func NewArchiveSink(next Sink, client dynamoAPI, table string, retention time.Duration) *ArchiveSink {
	return &ArchiveSink{next: next, client: client, table: table, retention: retention}
}

func (s *ArchiveSink) Ingest(ctx context.Context, b Batch) error {
	if err := s.archive(ctx, b); err != nil {
		logger.Warn("webhook archive failed", "esp", b.ESP, "events", len(b.Events), "error", err)
	}
	return s.next.Ingest(ctx, b)
}

func (s *ArchiveSink) archive(ctx context.Context, b Batch) error {
	data, err := json.Marshal(b.Events)
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}

	received := b.ReceivedAt.UTC()
	item := archiveItem{
		PK:        fmt.Sprintf("WEBHOOK#%s#%s", b.ESP, received.Format("2006-01-02")),
		SK:        received.Format(time.RFC3339Nano) + "#" + uuid.NewString(),
		ESP:       string(b.ESP),
		Events:    len(b.Events),
		Data:      string(data),
		Timestamp: received.Format(time.RFC3339),
	}
	if s.retention > 0 {
		item.TTL = received.Add(s.retention).Unix()
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}
