package ports

import (
	"context"

	"mediastream/internal/domain"
)

// RadioDirectory is the reseller-facing contract of the external radio
// directory: search stations and resolve one to a playable stream URL.
type RadioDirectory interface {
	Search(ctx context.Context, query string) ([]domain.RadioStation, error)
	Tune(ctx context.Context, stationID string) (string, error)
}
