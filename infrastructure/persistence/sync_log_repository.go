package persistence

import (
	"context"

	"ads-sync/domain/model"
	"ads-sync/infrastructure/logger"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const syncLogCollection = "sync_runs"

type SyncLogRepository struct {
	mongoDb  *mongo.Client
	database string
}

// NewSyncLogRepository accepts a nil client; entries are then only logged.
func NewSyncLogRepository(db *mongo.Client, database string) *SyncLogRepository {
	if database == "" {
		database = "ads_sync"
	}
	return &SyncLogRepository{mongoDb: db, database: database}
}

func (r *SyncLogRepository) Append(ctx context.Context, entry model.SyncLogEntry) error {
	if r.mongoDb == nil {
		logger.GetLogger().
			WithField("queue_job_id", entry.QueueJobID).
			WithField("outcome", entry.Outcome).
			Debug("MongoDB client is nil - sync run not persisted")
		return nil
	}
	_, err := r.collection().InsertOne(ctx, entry)
	return err
}

// Recent returns the latest attempts of a sync job, newest first.
func (r *SyncLogRepository) Recent(ctx context.Context, syncJobID string, limit int64) ([]model.SyncLogEntry, error) {
	if r.mongoDb == nil {
		return nil, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "finished_at", Value: -1}}).SetLimit(limit)
	cursor, err := r.collection().Find(ctx, bson.D{{Key: "sync_job_id", Value: syncJobID}}, opts)
	if err != nil {
		return nil, err
	}
	defer func(cursor *mongo.Cursor, ctx context.Context) {
		err := cursor.Close(ctx)
		if err != nil {
			logger.GetLogger().WithField("error", err).Error("Error while closing cursor")
		}
	}(cursor, ctx)

	var entries []model.SyncLogEntry
	for cursor.Next(ctx) {
		var entry model.SyncLogEntry
		if err := cursor.Decode(&entry); err != nil {
			logger.GetLogger().WithField("error", err).Error("Error while decoding sync run")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, cursor.Err()
}

func (r *SyncLogRepository) collection() *mongo.Collection {
	return r.mongoDb.Database(r.database).Collection(syncLogCollection)
}
