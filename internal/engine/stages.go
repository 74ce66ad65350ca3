package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scrypster/luminaries/internal/extract"
	"github.com/scrypster/luminaries/internal/identity"
	"github.com/scrypster/luminaries/internal/llm"
	"github.com/scrypster/luminaries/internal/logging"
	"github.com/scrypster/luminaries/internal/metrics"
	"github.com/scrypster/luminaries/internal/normalize"
	"github.com/scrypster/luminaries/internal/scoring"
	"github.com/scrypster/luminaries/internal/sources"
	"github.com/scrypster/luminaries/internal/storage"
	"github.com/scrypster/luminaries/pkg/types"
)

// identityStage loads the person, applies caller corrections and refreshes
// the profile from the knowledge base.
//
// A new identity key is confirmed with the knowledge base and checked to be
// free before anything is touched. Only then are content, cards, career
// events and courses cleared, in the same transaction that stores the new
// key. A knowledge base that does not know the identity is fatal; one that
// is unreachable leaves the stored profile in place, but cannot confirm a
// new key.
func (e *Engine) identityStage(ctx context.Context, job *Job, run *types.EnrichmentRun) (*types.Person, bool, error) {
	log := logging.Ctx(ctx)

	p, err := e.store.GetPerson(ctx, job.PersonID)
	if err != nil {
		return nil, false, fmt.Errorf("load person: %w", err)
	}

	key := p.IdentityKey
	changed := job.IdentityKey != "" && job.IdentityKey != p.IdentityKey
	if changed {
		key = job.IdentityKey
		other, err := e.store.GetPersonByIdentityKey(ctx, key)
		switch {
		case err == nil && other.ID != p.ID:
			return nil, false, fmt.Errorf("identity %s belongs to person %s: %w", key, other.ID, storage.ErrConflict)
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return nil, false, fmt.Errorf("check identity %s: %w", key, err)
		}
	}

	outcome := types.StageSuccess
	var entity *identity.Entity
	if e.kb == nil {
		outcome = types.StageUnconfigured
	} else {
		entity, err = e.kb.GetEntity(ctx, key)
		switch {
		case errors.Is(err, identity.ErrNotFound):
			return nil, false, fmt.Errorf("resolve %s: %w", key, err)
		case err != nil && changed:
			return nil, false, fmt.Errorf("confirm %s: %w", key, err)
		case err != nil:
			outcome = types.StagePartial
			log.Warn().Err(err).Str("identity_key", key).Msg("Knowledge base unavailable, keeping stored profile")
		}
	}

	previous := p.IdentityKey
	if changed {
		resetProfile(p, key)
	}
	if len(job.Aliases) > 0 {
		p.Aliases = types.NormalizeAliases(p.Name, append(p.Aliases, job.Aliases...))
	}
	if len(job.Links) > 0 {
		p.Links = types.NormalizeLinks(append(p.Links, job.Links...))
	}
	if entity != nil {
		identity.ApplyEntity(p, entity)
	}

	if !changed {
		if err := e.store.UpdatePerson(ctx, p); err != nil {
			return nil, false, fmt.Errorf("update person: %w", err)
		}
		run.SetStage(types.StageIdentity, outcome)
		return p, false, nil
	}

	stats, err := e.store.ReplaceIdentity(ctx, p)
	if err != nil {
		return nil, false, fmt.Errorf("replace identity: %w", err)
	}
	log.Info().
		Str("from", previous).
		Str("to", key).
		Int("content", stats.Content).
		Int("cards", stats.Cards).
		Int("career_events", stats.CareerEvents).
		Int("courses", stats.Courses).
		Msg("Identity changed, cleared derived data")
	run.SetStage(types.StageReset, types.StageSuccess)
	run.SetStage(types.StageIdentity, outcome)
	return p, true, nil
}

// resetProfile drops every field copied from the previous entity.
func resetProfile(p *types.Person, identityKey string) {
	p.IdentityKey = identityKey
	p.Description = ""
	p.Occupations = nil
	p.Organizations = nil
	p.Links = nil
	p.AvatarURL = ""
	p.Gender = ""
	p.Country = ""
	p.BirthYear = 0
}

// fetched is one adapter's output.
type fetched struct {
	source types.SourceKind
	result sources.FetchResult
}

// fetchStage runs every adapter concurrently. A failing adapter is a
// soft-skip: its stage is marked failed and the others continue. Each adapter
// fetches from its own cursor in history.
func (e *Engine) fetchStage(ctx context.Context, id types.PersonIdentity, history []*types.EnrichmentRun, run *types.EnrichmentRun) []fetched {
	out := make([]fetched, len(e.adapters))
	outcomes := make([]types.StageOutcome, len(e.adapters))

	var g errgroup.Group
	g.SetLimit(e.config.AdapterLimit)
	for i, a := range e.adapters {
		out[i].source = a.Kind()
		if !a.Configured() {
			outcomes[i] = types.StageUnconfigured
			continue
		}
		g.Go(func() error {
			log := logging.Ctx(ctx).With().Str("source", string(a.Kind())).Logger()
			start := time.Now()
			res, err := a.Fetch(ctx, id, sourceCursor(history, a.Kind()))
			metrics.RecordAdapterFetch(string(a.Kind()), len(res.Items), time.Since(start))

			switch {
			case err != nil:
				outcomes[i] = types.StageFailed
				log.Warn().Err(err).Msg("Source unavailable, skipping")
			case res.Status == sources.StatusUnconfigured:
				outcomes[i] = types.StageUnconfigured
			case len(res.Warnings) > 0:
				outcomes[i] = types.StagePartial
				out[i].result = res
				log.Warn().Strs("warnings", res.Warnings).Int("items", len(res.Items)).Msg("Source partially available")
			default:
				outcomes[i] = types.StageSuccess
				out[i].result = res
				log.Debug().Int("items", len(res.Items)).Msg("Source fetched")
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, f := range out {
		run.SetStage(types.SourceStage(f.source), outcomes[i])
		run.Counts.Fetched += len(f.result.Items)
	}
	return out
}

// normalizeStage cleans, filters and upserts everything fetched. A rejected
// write is fatal.
func (e *Engine) normalizeStage(ctx context.Context, id types.PersonIdentity, results []fetched, run *types.EnrichmentRun) error {
	n := normalize.New(e.store).WithFilter(e.filter).WithRun(run.ID)

	var total normalize.UpsertStats
	var failed error
	for _, f := range results {
		if len(f.result.Items) == 0 {
			continue
		}
		stats, err := n.NormalizeAndUpsert(ctx, id, f.source, f.result.Items)
		total.Add(stats)
		if err != nil {
			failed = fmt.Errorf("normalize %s: %w", f.source, err)
			break
		}
	}

	run.Counts.Inserted += total.Inserted
	run.Counts.Updated += total.Updated
	run.Counts.Skipped += total.Skipped
	run.Counts.Rejected += total.Rejected
	run.Counts.Malformed += total.Malformed
	run.Counts.NearDuplicates += total.NearDuplicates

	metrics.RecordContent("inserted", total.Inserted)
	metrics.RecordContent("updated", total.Updated)
	metrics.RecordContent("skipped", total.Skipped)
	metrics.RecordContent("rejected", total.Rejected)
	metrics.RecordContent("malformed", total.Malformed)
	metrics.RecordContent("near_duplicate", total.NearDuplicates)

	if failed != nil {
		return failed
	}
	run.SetStage(types.StageNormalize, types.StageSuccess)
	return nil
}

// extractStage extracts a timeline and courses from every stored item when
// anything was written since the last run that completed both extractions.
// A schema failure discards that extraction only, so the next run tries
// again; rejected writes are fatal.
func (e *Engine) extractStage(ctx context.Context, p *types.Person, history []*types.EnrichmentRun, run *types.EnrichmentRun) (string, error) {
	if e.extractor == nil {
		run.SetStage(types.StageTimeline, types.StageUnconfigured)
		run.SetStage(types.StageCourses, types.StageUnconfigured)
		return "", nil
	}

	items, err := e.store.ListContent(ctx, p.ID, storage.ContentFilter{})
	if err != nil {
		return types.StageTimeline, fmt.Errorf("list content: %w", err)
	}
	corpus := extract.CorpusFromContent(items)
	if len(corpus) == 0 || !writtenSince(items, extractionCursor(history)) {
		run.SetStage(types.StageTimeline, types.StageSkipped)
		run.SetStage(types.StageCourses, types.StageSkipped)
		return "", nil
	}

	log := logging.Ctx(ctx)
	pc := extract.ContextOf(p)

	events, err := e.extractor.ExtractTimeline(ctx, pc, corpus)
	if err != nil {
		run.SetStage(types.StageTimeline, types.StageFailed)
		log.Warn().Err(err).Bool("schema", errors.Is(err, llm.ErrSchema)).Msg("Timeline extraction discarded")
	} else {
		n, err := extract.PersistTimeline(ctx, e.store, p.ID, events)
		if err != nil {
			return types.StageTimeline, fmt.Errorf("persist timeline: %w", err)
		}
		run.Counts.CareerEvents = n
		run.SetStage(types.StageTimeline, types.StageSuccess)
	}

	courses, err := e.extractor.ExtractCourses(ctx, pc, corpus)
	if err != nil {
		run.SetStage(types.StageCourses, types.StageFailed)
		log.Warn().Err(err).Bool("schema", errors.Is(err, llm.ErrSchema)).Msg("Course extraction discarded")
		return "", nil
	}
	n, err := extract.PersistCourses(ctx, e.store, p.ID, courses)
	if err != nil {
		return types.StageCourses, fmt.Errorf("persist courses: %w", err)
	}
	run.Counts.Courses = n
	run.SetStage(types.StageCourses, types.StageSuccess)
	return "", nil
}

// cardsStage regenerates the profile cards from what is now stored.
func (e *Engine) cardsStage(ctx context.Context, p *types.Person, run *types.EnrichmentRun) error {
	events, err := e.store.ListCareerEvents(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("list career events: %w", err)
	}
	courses, err := e.store.ListCourses(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("list courses: %w", err)
	}
	items, err := e.store.ListContent(ctx, p.ID, storage.ContentFilter{})
	if err != nil {
		return fmt.Errorf("list content: %w", err)
	}

	if err := e.store.ReplaceCards(ctx, p.ID, BuildCards(p, events, courses, items)); err != nil {
		return fmt.Errorf("replace cards: %w", err)
	}
	run.SetStage(types.StageCards, types.StageSuccess)
	return nil
}

func (e *Engine) scoreStage(ctx context.Context, personID string, run *types.EnrichmentRun) error {
	if _, err := e.rescore(ctx, personID); err != nil {
		return err
	}
	run.SetStage(types.StageScore, types.StageSuccess)
	return nil
}

// rescore recomputes completeness and influence from stored data.
func (e *Engine) rescore(ctx context.Context, personID string) (storage.ScoreUpdate, error) {
	view, err := e.store.GetPersonView(ctx, personID)
	if err != nil {
		return storage.ScoreUpdate{}, fmt.Errorf("load person view: %w", err)
	}
	items, err := e.store.ListContent(ctx, personID, storage.ContentFilter{})
	if err != nil {
		return storage.ScoreUpdate{}, fmt.Errorf("list content: %w", err)
	}

	res := scoring.Score(scoring.SnapshotOf(view))
	upd := storage.ScoreUpdate{
		Completeness: res.Total,
		Breakdown:    res.Breakdown,
		Influence:    scoring.Influence(scoring.InfluenceInputFor(view.IdentityKey, view.Name, items, e.feed)),
		ScoredAt:     time.Now().UTC(),
	}
	if err := e.store.UpdateScores(ctx, personID, upd); err != nil {
		return storage.ScoreUpdate{}, fmt.Errorf("update scores: %w", err)
	}
	return upd, nil
}
