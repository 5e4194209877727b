package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/priyank/cloudvault/internal/models"
	"github.com/priyank/cloudvault/internal/vaulterr"
)

// Memory is an in-process Ledger guarded by a mutex. Used in tests and
// when running without a database; stats are derived from the record set
// on every read so they can never drift.
type Memory struct {
	mu      sync.Mutex
	records map[string]*models.FileRecord
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]*models.FileRecord)}
}

func (m *Memory) Record(ctx context.Context, rec *models.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (*models.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, vaulterr.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) List(ctx context.Context, ownerID string, key SortKey, desc bool) ([]*models.FileRecord, error) {
	m.mu.Lock()
	var out []*models.FileRecord
	for _, rec := range m.records {
		if rec.OwnerID == ownerID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	m.mu.Unlock()

	if !key.Valid() {
		key = SortCreatedAt
	}
	sort.Slice(out, func(i, j int) bool {
		var less bool
		switch key {
		case SortName:
			less = out[i].Name < out[j].Name
		case SortSize:
			less = out[i].SizeBytes < out[j].SizeBytes
		default:
			less = out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		if desc {
			return !less
		}
		return less
	})
	return out, nil
}

func (m *Memory) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return true, nil
}

func (m *Memory) Touch(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok {
		rec.LastAccessedAt = time.Now()
	}
	return nil
}

func (m *Memory) Stats(ctx context.Context, ownerID string) (*models.UserStorageStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.UserStorageStats{OwnerID: ownerID}
	for _, rec := range m.records {
		if rec.OwnerID == ownerID {
			stats.FileCount++
			stats.StorageUsedBytes += rec.SizeBytes
		}
	}
	return stats, nil
}

var _ Ledger = (*Memory)(nil)
var _ Ledger = (*SQLLedger)(nil)
