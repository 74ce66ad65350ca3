// Package normalize turns raw adapter candidates into stored content items.
// It assigns each item a stable identity hash, drops exact and near
// duplicates, and rejects items that fail the language or identity filters
// before anything is written.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/scrypster/luminaries/internal/fingerprint"
	"github.com/scrypster/luminaries/internal/logging"
	"github.com/scrypster/luminaries/internal/sources"
	"github.com/scrypster/luminaries/internal/storage"
	"github.com/scrypster/luminaries/pkg/types"
)

// MinFingerprintTerms is the smallest text, in terms, that takes part in
// near-duplicate detection. Shorter texts collide too easily in 64 dimensions.
const MinFingerprintTerms = 6

// Store is the subset of storage.ContentStore the normalizer writes through.
type Store interface {
	GetContentByHash(ctx context.Context, personID, hash string) (*types.ContentItem, error)
	InsertContent(ctx context.Context, item *types.ContentItem) error
	UpdateContent(ctx context.Context, item *types.ContentItem) error
	FindNearDuplicate(ctx context.Context, personID string, fingerprint []float32, threshold float64) (string, bool, error)
	ListContent(ctx context.Context, personID string, filter storage.ContentFilter) ([]*types.ContentItem, error)
	SetFetchStatus(ctx context.Context, id, status string) error
}

// UpsertStats counts what happened to each candidate of a batch.
type UpsertStats struct {
	Inserted       int `json:"inserted"`
	Updated        int `json:"updated"`
	Skipped        int `json:"skipped"`  // unchanged re-fetch
	Rejected       int `json:"rejected"` // failed the language or identity filter
	Malformed      int `json:"malformed"`
	NearDuplicates int `json:"near_duplicates"`
}

// Add accumulates o into s.
func (s *UpsertStats) Add(o UpsertStats) {
	s.Inserted += o.Inserted
	s.Updated += o.Updated
	s.Skipped += o.Skipped
	s.Rejected += o.Rejected
	s.Malformed += o.Malformed
	s.NearDuplicates += o.NearDuplicates
}

// Written is the number of rows inserted or updated.
func (s UpsertStats) Written() int { return s.Inserted + s.Updated }

// ReevaluateStats reports a corrective pass over stored items.
type ReevaluateStats struct {
	Checked   int `json:"checked"`
	Retracted int `json:"retracted"`
	Restored  int `json:"restored"`
}

// Normalizer writes filtered, deduplicated content. A Normalizer is safe for
// concurrent use when its store is.
type Normalizer struct {
	store  Store
	filter *Filter
	runID  string
	now    func() time.Time
}

// New creates a normalizer with the default filter.
func New(store Store) *Normalizer {
	return &Normalizer{
		store:  store,
		filter: NewFilter(nil, nil),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithFilter returns a copy using f.
func (n *Normalizer) WithFilter(f *Filter) *Normalizer {
	c := *n
	c.filter = f
	return &c
}

// WithRun returns a copy that stamps written items with runID, so later
// stages can read what this run produced.
func (n *Normalizer) WithRun(runID string) *Normalizer {
	c := *n
	c.runID = runID
	return &c
}

// NormalizeAndUpsert filters raws for the person and writes the survivors.
// Re-running it on the same input inserts nothing new. Only store failures
// are returned as errors; bad candidates are counted and logged.
func (n *Normalizer) NormalizeAndUpsert(ctx context.Context, person types.PersonIdentity, source types.SourceKind, raws []sources.RawCandidate) (UpsertStats, error) {
	var stats UpsertStats
	log := logging.Ctx(ctx).With().Str("source", string(source)).Logger()

	for i := range raws {
		raw := &raws[i]
		item, err := n.prepare(person.PersonID, source, raw)
		if err != nil {
			stats.Malformed++
			log.Warn().Err(err).Str("url", raw.URL).Msg("skipping malformed candidate")
			continue
		}
		if reason := n.filter.Check(person, source, item.Title, item.Body, item.Metadata); reason != "" {
			stats.Rejected++
			log.Debug().Str("reason", reason).Str("url", item.URL).Str("title", item.Title).Msg("candidate rejected")
			continue
		}

		outcome, err := n.upsert(ctx, item)
		if err != nil {
			return stats, err
		}
		switch outcome {
		case outcomeInserted:
			stats.Inserted++
		case outcomeUpdated:
			stats.Updated++
		case outcomeSkipped:
			stats.Skipped++
		case outcomeNearDuplicate:
			stats.NearDuplicates++
		}
	}

	log.Debug().
		Int("inserted", stats.Inserted).
		Int("updated", stats.Updated).
		Int("skipped", stats.Skipped).
		Int("rejected", stats.Rejected).
		Int("near_duplicates", stats.NearDuplicates).
		Msg("normalized batch")
	return stats, nil
}

// prepare cleans a candidate and computes its identity.
func (n *Normalizer) prepare(personID string, source types.SourceKind, raw *sources.RawCandidate) (*types.ContentItem, error) {
	title := CleanText(raw.Title)
	body := CleanText(raw.Text)
	if title == "" && body == "" {
		return nil, errors.New("candidate has no text")
	}

	var canonical string
	if strings.TrimSpace(raw.URL) != "" {
		c, err := CanonicalURL(raw.URL)
		if err != nil {
			return nil, err
		}
		canonical = c
	}

	text := body
	if text == "" {
		text = title
	}

	metadata := maps.Clone(raw.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	if canonical != "" && canonical != raw.URL {
		metadata["source_url"] = raw.URL
	}

	now := n.now()
	return &types.ContentItem{
		PersonID:    personID,
		Source:      source,
		URL:         canonical,
		ContentHash: ContentHash(canonical, text),
		Title:       title,
		Body:        body,
		PublishedAt: raw.PublishedAt,
		Metadata:    metadata,
		Fingerprint: fingerprint.Compute(title + "\n" + body),
		RunID:       n.runID,
		FetchedAt:   now,
	}, nil
}

type upsertOutcome int

const (
	outcomeInserted upsertOutcome = iota
	outcomeUpdated
	outcomeSkipped
	outcomeNearDuplicate
)

func (n *Normalizer) upsert(ctx context.Context, item *types.ContentItem) (upsertOutcome, error) {
	existing, err := n.store.GetContentByHash(ctx, item.PersonID, item.ContentHash)
	switch {
	case err == nil:
		if existing.Title == item.Title && existing.Body == item.Body && !existing.Retracted() &&
			!metricsChanged(existing.Metadata, item.Metadata) {
			return outcomeSkipped, nil
		}
		item.ID = existing.ID
		item.FetchStatus = types.FetchStatusUpdated
		if err := n.store.UpdateContent(ctx, item); err != nil {
			return 0, fmt.Errorf("update content %s: %w", item.ID, err)
		}
		return outcomeUpdated, nil
	case !errors.Is(err, storage.ErrNotFound):
		return 0, fmt.Errorf("lookup content hash: %w", err)
	}

	if len(fingerprint.Terms(item.Title+"\n"+item.Body)) >= MinFingerprintTerms {
		dupID, found, err := n.store.FindNearDuplicate(ctx, item.PersonID, item.Fingerprint, fingerprint.NearDuplicateThreshold)
		if err != nil {
			return 0, fmt.Errorf("near duplicate lookup: %w", err)
		}
		if found {
			logging.Ctx(ctx).Debug().Str("duplicate_of", dupID).Str("url", item.URL).Msg("near duplicate skipped")
			return outcomeNearDuplicate, nil
		}
	}

	item.FetchStatus = types.FetchStatusFetched
	if err := n.store.InsertContent(ctx, item); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Lost a race with a concurrent writer of the same hash.
			return outcomeSkipped, nil
		}
		return 0, fmt.Errorf("insert content: %w", err)
	}
	return outcomeInserted, nil
}

// metricsChanged compares the popularity counters influence is computed
// from. Stored metadata has been through JSON, so numbers compare as text.
func metricsChanged(old, cur map[string]any) bool {
	for _, key := range []string{sources.MetaStars, sources.MetaFollowers, sources.MetaCitations} {
		if fmt.Sprint(old[key]) != fmt.Sprint(cur[key]) {
			return true
		}
	}
	return false
}

// Reevaluate re-runs the filters over the person's stored items, retracting
// those that no longer pass and restoring retracted ones that pass again.
// Running it twice in a row changes nothing the second time.
func (n *Normalizer) Reevaluate(ctx context.Context, person types.PersonIdentity) (ReevaluateStats, error) {
	var stats ReevaluateStats
	items, err := n.store.ListContent(ctx, person.PersonID, storage.ContentFilter{IncludeRetracted: true})
	if err != nil {
		return stats, fmt.Errorf("list content: %w", err)
	}

	for _, item := range items {
		stats.Checked++
		passes := n.filter.Check(person, item.Source, item.Title, item.Body, item.Metadata) == ""
		switch {
		case !passes && !item.Retracted():
			if err := n.store.SetFetchStatus(ctx, item.ID, types.FetchStatusRetracted); err != nil {
				return stats, fmt.Errorf("retract %s: %w", item.ID, err)
			}
			stats.Retracted++
		case passes && item.Retracted():
			if err := n.store.SetFetchStatus(ctx, item.ID, types.FetchStatusFetched); err != nil {
				return stats, fmt.Errorf("restore %s: %w", item.ID, err)
			}
			stats.Restored++
		}
	}

	if stats.Retracted+stats.Restored > 0 {
		logging.Ctx(ctx).Info().
			Int("checked", stats.Checked).
			Int("retracted", stats.Retracted).
			Int("restored", stats.Restored).
			Msg("content re-evaluated")
	}
	return stats, nil
}
