package types_test

import (
	"testing"

	"github.com/scrypster/luminaries/pkg/types"
)

func TestValidPersonStatuses(t *testing.T) {
	for _, s := range []types.PersonStatus{"pending", "building", "ready", "error"} {
		if !types.IsValidPersonStatus(s) {
			t.Errorf("Expected %s to be valid person status", s)
		}
	}
}

func TestInvalidPersonStatuses(t *testing.T) {
	for _, s := range []types.PersonStatus{"", "done", "archived"} {
		if types.IsValidPersonStatus(s) {
			t.Errorf("Expected %q to be invalid person status", s)
		}
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to types.PersonStatus
		want     bool
	}{
		{types.StatusPending, types.StatusBuilding, true},
		{types.StatusBuilding, types.StatusReady, true},
		{types.StatusBuilding, types.StatusError, true},
		{types.StatusReady, types.StatusBuilding, true},
		{types.StatusError, types.StatusBuilding, true},
		{types.StatusPending, types.StatusReady, false},
		{types.StatusBuilding, types.StatusBuilding, false},
		{types.StatusBuilding, types.StatusPending, false},
		{types.StatusReady, types.StatusError, false},
	}
	for _, tt := range tests {
		if got := types.IsValidStatusTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("IsValidStatusTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsTerminalStatus(t *testing.T) {
	if !types.IsTerminalStatus(types.StatusReady) || !types.IsTerminalStatus(types.StatusError) {
		t.Error("ready and error should be terminal")
	}
	if types.IsTerminalStatus(types.StatusBuilding) {
		t.Error("building should not be terminal")
	}
}
