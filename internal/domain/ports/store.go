package ports

import (
	"context"

	"mediastream/internal/domain"
)

type FavoriteRepository interface {
	Upsert(ctx context.Context, fav domain.Favorite) error
	Delete(ctx context.Context, id domain.ContentID) error
	List(ctx context.Context, limit int) ([]domain.Favorite, error)
}

type WatchHistoryRepository interface {
	Upsert(ctx context.Context, wp domain.WatchPosition) error
	Get(ctx context.Context, id domain.ContentID, fileIndex int) (domain.WatchPosition, error)
	ListRecent(ctx context.Context, limit int) ([]domain.WatchPosition, error)
}
