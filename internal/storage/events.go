package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/amillerrr/lms-pipeline/pkg/models"
)

// StalledEventPublisher pushes stalled-asset events onto the operator queue.
// Delivery is at-least-once; consumers dedupe by remote video id.
type StalledEventPublisher struct {
	client   *sqs.Client
	queueURL string
}

// NewStalledEventPublisher creates a publisher from an existing SQS client.
func NewStalledEventPublisher(client *sqs.Client, queueURL string) *StalledEventPublisher {
	return &StalledEventPublisher{client: client, queueURL: queueURL}
}

// PublishStalled sends one event.
func (p *StalledEventPublisher) PublishStalled(ctx context.Context, event models.StalledAssetEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal stalled event: %w", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to publish stalled event: %w", err)
	}

	return nil
}
