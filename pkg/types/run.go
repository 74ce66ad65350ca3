package types

import "time"

// Enrichment stages recorded on a run.
const (
	StageIdentity  = "identity"
	StageReset     = "reset" // identity changed and derived data was cleared
	StageNormalize = "normalize"
	StageTimeline  = "timeline"
	StageCourses   = "courses"
	StageCards     = "cards"
	StageScore     = "score"
)

// SourceStage returns the stage name used for a source adapter.
func SourceStage(s SourceKind) string {
	return "source:" + string(s)
}

// Trigger identifies what started a run.
type Trigger string

const (
	TriggerCreated Trigger = "person/created"
	TriggerRefresh Trigger = "person/refresh"
	TriggerSweep   Trigger = "sweep"
	TriggerRecover Trigger = "recover"
)

// RunCounts aggregates diagnostic counters over a run.
type RunCounts struct {
	Fetched        int `json:"fetched"`
	Inserted       int `json:"inserted"`
	Updated        int `json:"updated"`
	Skipped        int `json:"skipped"`
	Rejected       int `json:"rejected"`
	Malformed      int `json:"malformed"`
	NearDuplicates int `json:"near_duplicates"`
	CareerEvents   int `json:"career_events"`
	Courses        int `json:"courses"`
}

// EnrichmentRun is one pass of the orchestrator over a person.
type EnrichmentRun struct {
	ID         string                  `json:"id"`
	PersonID   string                  `json:"person_id"`
	Trigger    Trigger                 `json:"trigger"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt *time.Time              `json:"finished_at,omitempty"`
	Status     PersonStatus            `json:"status"` // building while in flight, then ready or error
	Stages     map[string]StageOutcome `json:"stages"`
	Error      string                  `json:"error,omitempty"`
	Counts     RunCounts               `json:"counts"`
}

// SetStage records the outcome of a stage.
func (r *EnrichmentRun) SetStage(stage string, outcome StageOutcome) {
	if r.Stages == nil {
		r.Stages = make(map[string]StageOutcome)
	}
	r.Stages[stage] = outcome
}

// ResolutionOutcome is the result category of an identity lookup.
type ResolutionOutcome string

const (
	OutcomeLocal     ResolutionOutcome = "local"
	OutcomeExternal  ResolutionOutcome = "external"
	OutcomeAmbiguous ResolutionOutcome = "ambiguous"
	OutcomeNotFound  ResolutionOutcome = "not_found"
)

// ResolutionSession records one identity lookup for analytics.
type ResolutionSession struct {
	ID             string            `json:"id"`
	Query          string            `json:"query"`
	Outcome        ResolutionOutcome `json:"outcome"`
	PersonID       string            `json:"person_id,omitempty"`
	CandidateCount int               `json:"candidate_count"`
	Diagnostic     string            `json:"diagnostic,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}
