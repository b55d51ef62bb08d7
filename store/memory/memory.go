// Package memory provides in-memory UsageStore and ItemStore
// implementations for tests and local development. State is local to
// the process, so they cannot coordinate multiple worker instances.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ineyio/industrymatch"
)

// Store holds usage counters and news items in process memory.
type Store struct {
	mu    sync.Mutex
	usage map[string]industrymatch.UsageRecord // model + "|" + date
	items map[string]*storedItem
}

type storedItem struct {
	item       industrymatch.NewsItem
	classified bool
	industries []string
}

var (
	_ industrymatch.UsageStore = (*Store)(nil)
	_ industrymatch.ItemStore  = (*Store)(nil)
)

// New creates an empty Store.
func New() *Store {
	return &Store{
		usage: make(map[string]industrymatch.UsageRecord),
		items: make(map[string]*storedItem),
	}
}

func usageKey(model, date string) string { return model + "|" + date }

// GetUsage returns the record for (model, date).
func (s *Store) GetUsage(_ context.Context, model, date string) (industrymatch.UsageRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.usage[usageKey(model, date)]
	return rec, ok, nil
}

// RecordUsage applies one request of tokens at now.
func (s *Store) RecordUsage(_ context.Context, model string, tokens int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	date := industrymatch.DateUTC(now)
	key := usageKey(model, date)
	rec, ok := s.usage[key]
	if !ok {
		rec = industrymatch.UsageRecord{Model: model, Date: date}
	}
	rec.Add(tokens, now)
	s.usage[key] = rec
	return nil
}

// SetUsage seeds a usage record directly. Test helper.
func (s *Store) SetUsage(rec industrymatch.UsageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[usageKey(rec.Model, rec.Date)] = rec
}

// AddItem adds an unclassified news item.
func (s *Store) AddItem(item industrymatch.NewsItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = &storedItem{item: item}
}

// FetchUnclassified returns unclassified items published within the
// lookback window, newest first.
func (s *Store) FetchUnclassified(_ context.Context, lookback time.Duration, limit int) ([]industrymatch.NewsItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-lookback)
	var out []industrymatch.NewsItem
	for _, si := range s.items {
		if si.classified || si.item.PublishedAt.Before(cutoff) {
			continue
		}
		out = append(out, si.item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PersistClassification stores the label list and marks the item
// classified. Calling it twice with the same arguments is a no-op the
// second time.
func (s *Store) PersistClassification(_ context.Context, id string, industries []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	si, ok := s.items[id]
	if !ok {
		si = &storedItem{item: industrymatch.NewsItem{ID: id}}
		s.items[id] = si
	}
	si.classified = true
	si.industries = append([]string(nil), industries...)
	return nil
}

// Classified returns the persisted labels for id, if any. Test helper.
func (s *Store) Classified(id string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	si, ok := s.items[id]
	if !ok || !si.classified {
		return nil, false
	}
	return append([]string(nil), si.industries...), true
}
