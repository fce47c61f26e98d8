package policy

import (
	"execbox/internal/sandbox/spec"
	appErr "execbox/pkg/errors"
)

// Default ceilings. Soft and hard are set equal, leaving no window in
// which a process could raise its own soft limit back up.
const (
	DefaultMaxProcesses uint64 = 16
	DefaultMaxOpenFiles uint64 = 32
	DefaultMaxFileSize  uint64 = 10 * 1024 * 1024
)

// LimitTable is the fixed set of per-identity resource ceilings for one
// instance. It is immutable after provisioning; every process spawned
// under the execution identity inherits it.
type LimitTable struct {
	entries []spec.LimitEntry
}

// NewLimitTable builds a validated table from explicit entries.
func NewLimitTable(entries []spec.LimitEntry) (LimitTable, error) {
	t := LimitTable{entries: append([]spec.LimitEntry(nil), entries...)}
	if err := t.Validate(); err != nil {
		return LimitTable{}, err
	}
	return t, nil
}

// DefaultLimitTable returns the standard policy values.
func DefaultLimitTable() LimitTable {
	return LimitTable{entries: []spec.LimitEntry{
		{Kind: spec.KindProcesses, Soft: DefaultMaxProcesses, Hard: DefaultMaxProcesses},
		{Kind: spec.KindOpenFiles, Soft: DefaultMaxOpenFiles, Hard: DefaultMaxOpenFiles},
		{Kind: spec.KindFileSize, Soft: DefaultMaxFileSize, Hard: DefaultMaxFileSize},
	}}
}

// Validate checks soft <= hard for every entry and rejects unknown or
// duplicate kinds and zero hard ceilings.
func (t LimitTable) Validate() error {
	if len(t.entries) == 0 {
		return appErr.New(appErr.LimitTableInvalid).WithMessage("limit table is empty")
	}
	seen := make(map[spec.ResourceKind]bool, len(t.entries))
	for _, e := range t.entries {
		switch e.Kind {
		case spec.KindProcesses, spec.KindOpenFiles, spec.KindFileSize:
		default:
			return appErr.Newf(appErr.LimitTableInvalid, "unknown resource kind: %s", e.Kind)
		}
		if seen[e.Kind] {
			return appErr.Newf(appErr.LimitTableInvalid, "duplicate resource kind: %s", e.Kind)
		}
		seen[e.Kind] = true
		if e.Hard == 0 {
			return appErr.Newf(appErr.LimitTableInvalid, "hard ceiling for %s is zero", e.Kind)
		}
		if e.Soft > e.Hard {
			return appErr.Newf(appErr.LimitTableInvalid, "soft ceiling above hard for %s", e.Kind)
		}
	}
	return nil
}

// Entries returns a copy of the table.
func (t LimitTable) Entries() []spec.LimitEntry {
	return append([]spec.LimitEntry(nil), t.entries...)
}

// Ceiling returns the hard ceiling for a kind, or zero if absent.
func (t LimitTable) Ceiling(kind spec.ResourceKind) uint64 {
	for _, e := range t.entries {
		if e.Kind == kind {
			return e.Hard
		}
	}
	return 0
}
