package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mediastream/internal/domain"
	"mediastream/internal/domain/ports"
)

var _ ports.WatchHistoryRepository = (*WatchHistoryRepository)(nil)

type watchPositionDoc struct {
	ID          string  `bson:"_id"`
	ContentID   string  `bson:"contentId"`
	FileIndex   int     `bson:"fileIndex"`
	PositionSec float64 `bson:"positionSec"`
	DurationSec float64 `bson:"durationSec"`
	UpdatedAt   int64   `bson:"updatedAt"`
}

type WatchHistoryRepository struct {
	collection *mongo.Collection
}

func NewWatchHistoryRepository(client *mongo.Client, dbName string) *WatchHistoryRepository {
	return &WatchHistoryRepository{collection: client.Database(dbName).Collection("watch_history")}
}

func watchDocID(id domain.ContentID, fileIndex int) string {
	return fmt.Sprintf("%s:%d", string(id), fileIndex)
}

func (r *WatchHistoryRepository) Upsert(ctx context.Context, wp domain.WatchPosition) error {
	update := bson.M{
		"$set": bson.M{
			"contentId":   string(wp.ContentID),
			"fileIndex":   wp.FileIndex,
			"positionSec": wp.PositionSec,
			"durationSec": wp.DurationSec,
			"updatedAt":   time.Now().Unix(),
		},
	}
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": watchDocID(wp.ContentID, wp.FileIndex)},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *WatchHistoryRepository) Get(ctx context.Context, id domain.ContentID, fileIndex int) (domain.WatchPosition, error) {
	var doc watchPositionDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": watchDocID(id, fileIndex)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.WatchPosition{}, domain.ErrNotFound
		}
		return domain.WatchPosition{}, err
	}
	return watchDocToPosition(doc), nil
}

func (r *WatchHistoryRepository) ListRecent(ctx context.Context, limit int) ([]domain.WatchPosition, error) {
	if limit <= 0 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []watchPositionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	positions := make([]domain.WatchPosition, 0, len(docs))
	for _, doc := range docs {
		positions = append(positions, watchDocToPosition(doc))
	}
	return positions, nil
}

func watchDocToPosition(doc watchPositionDoc) domain.WatchPosition {
	return domain.WatchPosition{
		ContentID:   domain.ContentID(doc.ContentID),
		FileIndex:   doc.FileIndex,
		PositionSec: doc.PositionSec,
		DurationSec: doc.DurationSec,
		UpdatedAt:   time.Unix(doc.UpdatedAt, 0).UTC(),
	}
}
