// Package types defines the core data structures for the Luminaries directory.
// These types represent people, the content fetched about them, their career
// timeline and the bookkeeping of enrichment runs.
package types

// PersonStatus represents the lifecycle status of a person profile.
type PersonStatus string

// SourceKind identifies the external system a content item was fetched from.
type SourceKind string

// StageOutcome represents the result of a single enrichment stage.
type StageOutcome string

// Person lifecycle status constants
const (
	// StatusPending indicates the profile was created and awaits its first run
	StatusPending PersonStatus = "pending"

	// StatusBuilding indicates an enrichment run is in flight.
	// It doubles as an advisory lock: only one run per person at a time.
	StatusBuilding PersonStatus = "building"

	// StatusReady indicates the last run attempted every stage
	StatusReady PersonStatus = "ready"

	// StatusError indicates the last run hit a fatal condition
	StatusError PersonStatus = "error"
)

// Source kinds
const (
	SourceKnowledgeBase SourceKind = "knowledgebase"
	SourceCode          SourceKind = "code"
	SourceVideo         SourceKind = "video"
	SourceSocial        SourceKind = "social"
	SourceAcademic      SourceKind = "academic"
	SourceWebSearch     SourceKind = "websearch"
)

// AllSources lists every source kind in the order the orchestrator reports them.
var AllSources = []SourceKind{
	SourceKnowledgeBase,
	SourceCode,
	SourceVideo,
	SourceSocial,
	SourceAcademic,
	SourceWebSearch,
}

// IsValidSource checks if s is a known source kind.
func IsValidSource(s SourceKind) bool {
	for _, k := range AllSources {
		if k == s {
			return true
		}
	}
	return false
}

// Stage outcome constants
const (
	// StageSuccess indicates the stage completed with no errors
	StageSuccess StageOutcome = "success"

	// StagePartial indicates the stage completed but dropped some items
	StagePartial StageOutcome = "partial"

	// StageFailed indicates the stage failed and was soft-skipped
	StageFailed StageOutcome = "failed"

	// StageUnconfigured indicates the source has no credentials configured
	StageUnconfigured StageOutcome = "unconfigured"

	// StageSkipped indicates the stage was intentionally not run
	StageSkipped StageOutcome = "skipped"
)

// Content fetch status constants
const (
	FetchStatusFetched   = "fetched"
	FetchStatusUpdated   = "updated"
	FetchStatusRetracted = "retracted"
)

// Provenance values stored alongside extracted facts.
const (
	ProvenanceLLM    = "llm_extraction"
	ProvenanceManual = "manual"
)
