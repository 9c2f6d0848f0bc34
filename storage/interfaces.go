package storage

import (
	"context"

	"github.com/rotisserie/eris"

	"leadcaller/models"
)

var (
	// ErrNoDataset is returned when no search cycle has produced a dataset yet.
	ErrNoDataset = eris.New("storage: no dataset available")
	// ErrNoSnapshot is returned when no qualified-lead snapshot has been computed.
	ErrNoSnapshot = eris.New("storage: no qualified-lead snapshot")
)

// DatasetMirror receives a full copy of the dataset every time it is
// persisted. Mirrors replace their previous content.
type DatasetMirror interface {
	Write(ctx context.Context, ds *models.Dataset) error
	Close() error
}

// SnapshotStore holds the current qualified-lead snapshot.
type SnapshotStore interface {
	Put(ctx context.Context, snap *models.QualifiedSnapshot) error
	Get(ctx context.Context) (*models.QualifiedSnapshot, error)
}
