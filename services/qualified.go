package services

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"leadcaller/metrics"
	"leadcaller/models"
	"leadcaller/storage"
	"leadcaller/utils"
)

// QualifiedCache maintains the snapshot of leads that meet the active
// criterion. Every refresh replaces the snapshot wholesale.
type QualifiedCache struct {
	store  storage.SnapshotStore
	logger *utils.Logger
}

func NewQualifiedCache(store storage.SnapshotStore, logger *utils.Logger) *QualifiedCache {
	return &QualifiedCache{store: store, logger: logger}
}

// BuildSnapshot renders the qualifying rows over the dataset's present
// columns, with empty cells shown as models.NotAvailable.
func BuildSnapshot(ds *models.Dataset) *models.QualifiedSnapshot {
	snap := &models.QualifiedSnapshot{
		CycleID:   ds.CycleID,
		Leads:     []map[string]string{},
		UpdatedAt: time.Now(),
	}
	cols := ds.PresentColumns()
	for _, l := range ds.Leads {
		if !l.MeetsCriteria {
			continue
		}
		values := l.Values()
		rec := make(map[string]string, len(cols))
		for _, c := range cols {
			v := values[c]
			if v == "" {
				v = models.NotAvailable
			}
			rec[c] = v
		}
		snap.Leads = append(snap.Leads, rec)
	}
	return snap
}

// Refresh recomputes the snapshot from ds and stores it.
func (q *QualifiedCache) Refresh(ctx context.Context, ds *models.Dataset) (*models.QualifiedSnapshot, error) {
	snap := BuildSnapshot(ds)
	if err := q.store.Put(ctx, snap); err != nil {
		return nil, eris.Wrap(err, "qualified: store snapshot")
	}
	metrics.QualifiedLeads.Set(float64(len(snap.Leads)))
	q.logger.Info("[qualified] Snapshot refreshed: %d qualified leads", len(snap.Leads))
	return snap, nil
}

// Current returns the latest snapshot. An empty snapshot is reported as
// storage.ErrNoSnapshot.
func (q *QualifiedCache) Current(ctx context.Context) (*models.QualifiedSnapshot, error) {
	snap, err := q.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if len(snap.Leads) == 0 {
		return nil, storage.ErrNoSnapshot
	}
	return snap, nil
}
