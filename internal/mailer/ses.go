package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/mailtrack/internal/config"
	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/pkg/logger"
)

type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, opts ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends raw MIME through the SES v2 API.
type SESSender struct {
	client           sesAPI
	metadataKey      string
	configurationSet string
	timeout          time.Duration
}

// NewSESSender builds an SES client. Static credentials are used when both
// keys are configured, otherwise the default credential chain.
func NewSESSender(ctx context.Context, cfg config.SESConfig, metadataKey string) (*SESSender, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &SESSender{
		client:           sesv2.NewFromConfig(awsCfg),
		metadataKey:      metadataKey,
		configurationSet: cfg.ConfigurationSet,
		timeout:          cfg.Timeout(),
	}, nil
}

func (s *SESSender) Send(ctx context.Context, msg *Outgoing) (*domain.SendResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &types.Destination{ToAddresses: msg.Recipients},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: msg.Raw},
		},
	}
	if msg.ID != "" {
		input.EmailTags = []types.MessageTag{
			{Name: aws.String(s.metadataKey), Value: aws.String(msg.ID)},
		}
	}
	if s.configurationSet != "" {
		input.ConfigurationSetName = aws.String(s.configurationSet)
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("ses send: %w", err)
	}

	providerID := aws.ToString(out.MessageId)
	logger.Info("message sent", "esp", domain.ESPSES, "message_id", msg.ID,
		"provider_message_id", providerID, "recipients", len(msg.Recipients))

	return &domain.SendResult{
		ProviderMessageID: providerID,
		ESPType:           domain.ESPSES,
		Accepted:          len(msg.Recipients),
		SentAt:            time.Now().UTC(),
	}, nil
}
