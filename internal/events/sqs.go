package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/tbourn/go-match-backend/internal/config"
)

// NewSQSClient builds an SQS client. A non-empty AWSEndpoint (e.g. LocalStack)
// overrides the resolved endpoint; static keys override the default chain.
func NewSQSClient(ctx context.Context, cfg config.EventsConfig) (*sqs.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.AWSKeyID != "" && cfg.AWSSecret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSKeyID, cfg.AWSSecret, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWSEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpoint)
		}
	}), nil
}

// SQSPublisher sends events to a single queue.
type SQSPublisher struct {
	client   *sqs.Client
	queueURL string
	now      func() time.Time
}

func NewSQSPublisher(client *sqs.Client, queueURL string) *SQSPublisher {
	return &SQSPublisher{client: client, queueURL: queueURL, now: func() time.Time { return time.Now().UTC() }}
}

func (p *SQSPublisher) ApplicationCreated(ctx context.Context, ev ApplicationCreated) error {
	return p.send(ctx, TypeApplicationCreated, ev)
}

func (p *SQSPublisher) send(ctx context.Context, typ string, data any) error {
	body, err := json.Marshal(Envelope{Type: typ, OccurredAt: p.now(), Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	input := &sqs.SendMessageInput{
		MessageBody: aws.String(string(body)),
		QueueUrl:    aws.String(p.queueURL),
	}
	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}
