package pubsub

import (
	"context"
	"fmt"
	"sync"

	"ads-sync/domain/dto"
	"ads-sync/domain/repository"
	"ads-sync/infrastructure/logger"

	"cloud.google.com/go/pubsub"
	"github.com/goccy/go-json"
	"google.golang.org/api/option"
)

// NewPubSub returns nil, nil when no project is configured.
func NewPubSub(ctx context.Context, projectID string, opts ...option.ClientOption) (*pubsub.Client, error) {
	if projectID == "" {
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	return client, nil
}

type SyncEventPublisher struct {
	PubSubClient *pubsub.Client
	topicName    string

	mu    sync.Mutex
	topic *pubsub.Topic
}

func NewSyncEventPublisher(pubSubClient *pubsub.Client, topicName string) repository.ISyncEventPublisher {
	return &SyncEventPublisher{
		PubSubClient: pubSubClient,
		topicName:    topicName,
	}
}

// ensureTopic creates the topic on first use if it doesn't exist.
func (p *SyncEventPublisher) ensureTopic(ctx context.Context) (*pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.topic != nil {
		return p.topic, nil
	}

	topic := p.PubSubClient.Topic(p.topicName)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		logger.GetLogger().WithField("topic", p.topicName).Info("Topic doesn't exist - creating it")
		topic, err = p.PubSubClient.CreateTopic(ctx, p.topicName)
		if err != nil {
			return nil, err
		}
	}
	p.topic = topic
	return topic, nil
}

func (p *SyncEventPublisher) PublishSyncCompleted(ctx context.Context, event dto.SyncCompletedEvent) error {
	if p.PubSubClient == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	topic, err := p.ensureTopic(ctx)
	if err != nil {
		return fmt.Errorf("pubsub topic %s: %w", p.topicName, err)
	}

	msg := &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event":           "sync.completed",
			"ad_account_id":   event.AdAccountID,
			"organization_id": event.OrganizationID,
		},
	}
	serverID, err := topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return err
	}

	logger.GetLogger().
		WithField("server_id", serverID).
		WithField("sync_job_id", event.SyncJobID).
		Debug("Sync completed event published")
	return nil
}

// Close flushes pending messages.
func (p *SyncEventPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.topic != nil {
		p.topic.Stop()
	}
}
