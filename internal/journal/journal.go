package journal

import (
	"encoding/json"
	"strings"
	"sync"

	"escrowdesk/internal/models"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
)

const (
	DefaultDir   = "./wal/deals"
	segmentLimit = 1000
	maxSegments  = 20

	dealKeyPrefix = "deal_"
)

// Journal is an append-only log of committed deal events backed by a WAL.
type Journal struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

func Open(dir string) (*Journal, error) {
	if dir == "" {
		dir = DefaultDir
	}
	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "deal_events_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init deal journal")
	}
	return &Journal{wal: wal}, nil
}

// Append stamps event with the next sequence number and writes it.
func (j *Journal) Append(event models.DealEvent) (uint64, error) {
	if j == nil || j.wal == nil {
		return 0, errors.New("deal journal is not initialized")
	}
	if event.TradeCode == "" {
		return 0, errors.New("deal event trade code is required")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	next := j.wal.CurrentIndex() + 1
	event.Sequence = next
	payload, err := json.Marshal(event)
	if err != nil {
		return 0, errors.Wrap(err, "marshal deal event")
	}
	if err := j.wal.Write(next, dealKeyPrefix+event.TradeCode, payload); err != nil {
		return 0, errors.Wrapf(err, "write deal event %d", next)
	}
	return next, nil
}

// After returns up to limit events with a sequence greater than index.
// Records that rotated out of the retained segments are skipped.
func (j *Journal) After(index uint64, limit int) ([]models.DealEvent, error) {
	if j == nil || j.wal == nil {
		return nil, errors.New("deal journal is not initialized")
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	current := j.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	events := make([]models.DealEvent, 0, min(uint64(limit), current-index))
	for idx := index + 1; idx <= current && len(events) < limit; idx++ {
		key, payload, err := j.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, dealKeyPrefix) {
			continue
		}
		var event models.DealEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, errors.Wrapf(err, "decode deal event %d", idx)
		}
		events = append(events, event)
	}
	return events, nil
}

func (j *Journal) CurrentIndex() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.wal.CurrentIndex()
}

func (j *Journal) Close() error {
	return j.wal.Close()
}
