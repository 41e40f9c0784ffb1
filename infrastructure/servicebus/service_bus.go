package servicebus

import (
	"context"
	"fmt"

	"ads-sync/domain/dto"
	"ads-sync/domain/repository"
	"ads-sync/infrastructure/logger"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/goccy/go-json"
)

// NewServiceBus authenticates with the default Azure credential chain.
// It returns nil, nil when no namespace is configured.
func NewServiceBus(ctx context.Context, namespace string) (*azservicebus.Client, error) {
	if namespace == "" {
		return nil, nil
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}
	client, err := azservicebus.NewClient(namespace, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("service bus client: %w", err)
	}
	return client, nil
}

type SyncEventSender struct {
	AzservicebusClient *azservicebus.Client
	queueOrTopic       string
}

func NewSyncEventSender(azServiceBusClient *azservicebus.Client, queueOrTopic string) repository.ISyncEventPublisher {
	return &SyncEventSender{AzservicebusClient: azServiceBusClient, queueOrTopic: queueOrTopic}
}

// NewMessage builds the Service Bus message of a sync completed event.
// The sync job id doubles as message id so duplicate detection drops redeliveries.
func NewMessage(event dto.SyncCompletedEvent) (*azservicebus.Message, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	contentType := "application/json"
	subject := "sync.completed"
	messageID := event.SyncJobID
	return &azservicebus.Message{
		Body:        body,
		ContentType: &contentType,
		Subject:     &subject,
		MessageID:   &messageID,
		ApplicationProperties: map[string]interface{}{
			"ad_account_id":   event.AdAccountID,
			"organization_id": event.OrganizationID,
		},
	}, nil
}

func (s *SyncEventSender) PublishSyncCompleted(ctx context.Context, event dto.SyncCompletedEvent) error {
	if s.AzservicebusClient == nil {
		return nil
	}
	msg, err := NewMessage(event)
	if err != nil {
		return err
	}

	sender, err := s.AzservicebusClient.NewSender(s.queueOrTopic, nil)
	if err != nil {
		logger.GetLogger().
			WithField("error", err).
			Error("Error while making new sender service bus.")
		return err
	}
	defer func(sender *azservicebus.Sender, ctx context.Context) {
		err := sender.Close(ctx)
		if err != nil {
			logger.GetLogger().
				WithField("error", err).
				Error("Error while closing sender.")
		}
	}(sender, context.WithoutCancel(ctx))

	if err := sender.SendMessage(ctx, msg, nil); err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while sending message.")
		return err
	}
	return nil
}
