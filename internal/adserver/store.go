// Package adserver is a small waterfall ad server: it pages an ad unit's
// waterfall out in batches and counts the analytics beacons it gets back.
package adserver

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/echoface/adloader/internal/config"
	"github.com/echoface/adloader/internal/payload"
)

// ErrNotFound is returned by a Store for an unknown ad unit.
var ErrNotFound = errors.New("adserver: ad unit not found")

// Waterfall is the full, ordered candidate list of one ad unit.
type Waterfall struct {
	AdUnitID string          `json:"ad_unit_id"`
	Format   string          `json:"format,omitempty"`
	Entries  []payload.Entry `json:"entries"`
}

type Store interface {
	Waterfall(ctx context.Context, adUnitID string) (*Waterfall, error)
}

// MemoryStore keeps waterfalls in a map.
type MemoryStore struct {
	mu         sync.RWMutex
	waterfalls map[string]*Waterfall
}

func NewMemoryStore(waterfalls ...*Waterfall) *MemoryStore {
	s := &MemoryStore{waterfalls: make(map[string]*Waterfall, len(waterfalls))}
	for _, wf := range waterfalls {
		s.Put(wf)
	}
	return s
}

// NewMemoryStoreFromConfig builds a store from the ad_units config section.
func NewMemoryStoreFromConfig(units []config.AdUnitConfig) *MemoryStore {
	s := NewMemoryStore()
	for _, unit := range units {
		wf := &Waterfall{AdUnitID: unit.ID, Format: unit.Format}
		for _, e := range unit.Entries {
			var extras map[string]any
			if len(e.Extras) > 0 {
				extras = make(map[string]any, len(e.Extras))
				for k, v := range e.Extras {
					extras[k] = v
				}
			}
			wf.Entries = append(wf.Entries, payload.Entry{
				AdUnitFormat: unit.Format,
				Body:         e.Body,
				Metadata: payload.Metadata{
					AdType:               e.AdType,
					NetworkType:          e.NetworkType,
					CustomEventClassName: e.CustomEventClassName,
					CustomEventClassData: extras,
					BeforeLoadURL:        e.BeforeLoadURL,
					AfterLoadURLs:        e.AfterLoadURLs,
					ImpTrackers:          e.ImpTrackers,
					ClickThrough:         e.ClickThrough,
					RefreshTime:          e.RefreshTime,
				},
			})
		}
		s.Put(wf)
	}
	return s
}

func (s *MemoryStore) Put(wf *Waterfall) {
	if wf == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waterfalls[wf.AdUnitID] = wf
}

func (s *MemoryStore) Waterfall(_ context.Context, adUnitID string) (*Waterfall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.waterfalls[adUnitID]
	if !ok {
		return nil, ErrNotFound
	}
	return wf, nil
}

// AdUnits returns the known ad unit ids, sorted.
func (s *MemoryStore) AdUnits() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.waterfalls))
	for id := range s.waterfalls {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
