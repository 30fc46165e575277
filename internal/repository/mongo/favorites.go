package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mediastream/internal/domain"
	"mediastream/internal/domain/ports"
)

var _ ports.FavoriteRepository = (*FavoriteRepository)(nil)

type favoriteDoc struct {
	ID        string `bson:"_id"`
	Title     string `bson:"title"`
	Category  string `bson:"category"`
	CreatedAt int64  `bson:"createdAt"`
}

type FavoriteRepository struct {
	collection *mongo.Collection
}

func NewFavoriteRepository(client *mongo.Client, dbName string) *FavoriteRepository {
	return &FavoriteRepository{collection: client.Database(dbName).Collection("favorites")}
}

func (r *FavoriteRepository) Upsert(ctx context.Context, fav domain.Favorite) error {
	createdAt := fav.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	update := bson.M{
		"$set": bson.M{
			"title":    fav.Title,
			"category": fav.Category,
		},
		"$setOnInsert": bson.M{
			"createdAt": createdAt.Unix(),
		},
	}
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": string(fav.ContentID)},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *FavoriteRepository) Delete(ctx context.Context, id domain.ContentID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *FavoriteRepository) List(ctx context.Context, limit int) ([]domain.Favorite, error) {
	if limit <= 0 {
		limit = 100
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []favoriteDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	favorites := make([]domain.Favorite, 0, len(docs))
	for _, doc := range docs {
		favorites = append(favorites, domain.Favorite{
			ContentID: domain.ContentID(doc.ID),
			Title:     doc.Title,
			Category:  doc.Category,
			CreatedAt: time.Unix(doc.CreatedAt, 0).UTC(),
		})
	}
	return favorites, nil
}
