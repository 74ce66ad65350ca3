package types

// ValidPersonStatuses contains all valid person lifecycle statuses
var ValidPersonStatuses = []PersonStatus{
	StatusPending,
	StatusBuilding,
	StatusReady,
	StatusError,
}

// IsValidPersonStatus checks if the given status is a valid lifecycle status.
func IsValidPersonStatus(status PersonStatus) bool {
	for _, s := range ValidPersonStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsValidStatusTransition validates transitions of the enrichment state machine.
//
// Valid transitions:
//
//	pending  -> building
//	building -> ready | error
//	ready    -> building
//	error    -> building
//
// A run is re-triggered by moving a terminal status back to building, so
// error is resumable and ready is refreshable.
func IsValidStatusTransition(current, next PersonStatus) bool {
	switch current {
	case StatusPending, StatusReady, StatusError:
		return next == StatusBuilding
	case StatusBuilding:
		return next == StatusReady || next == StatusError
	default:
		return false
	}
}

// IsTerminalStatus reports whether status ends a run.
func IsTerminalStatus(status PersonStatus) bool {
	return status == StatusReady || status == StatusError
}
