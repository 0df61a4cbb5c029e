// Package version keeps the append-only history of pipeline result
// snapshots and the pointer to the one currently shown.
package version

import (
	"fmt"
	"net/http"
	"time"

	"servicelines-be/pkg/apperr"
	"servicelines-be/pkg/pipeline"
)

// Version is an immutable snapshot of a result set.
type Version struct {
	ServiceClasses  []pipeline.ServiceClass    `json:"serviceClasses"`
	TextGenerations []*pipeline.TextGeneration `json:"textGenerations"`
	Query           string                     `json:"query"`
	CreatedAt       time.Time                  `json:"createdAt"`
}

// Clone returns a deep copy.
func (v Version) Clone() Version {
	return Version{
		ServiceClasses:  pipeline.CloneClasses(v.ServiceClasses),
		TextGenerations: pipeline.CloneGenerations(v.TextGenerations),
		Query:           v.Query,
		CreatedAt:       v.CreatedAt,
	}
}

// OutOfRangeError is returned when switching to an index that does not exist.
type OutOfRangeError struct {
	Index  int
	Length int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("version %d out of range (have %d)", e.Index, e.Length)
}

func (e *OutOfRangeError) StatusCode() int { return http.StatusBadRequest }

func (e *OutOfRangeError) Is(target error) bool { return target == apperr.ErrValidation }

// Manager is not safe for concurrent use; the orchestrator serialises access.
type Manager struct {
	versions []Version
	current  int
}

func NewManager() *Manager {
	return &Manager{current: -1}
}

// Create stores a copy of snapshot and makes it current.
func (m *Manager) Create(snapshot Version) int {
	m.versions = append(m.versions, snapshot.Clone())
	m.current = len(m.versions) - 1
	return m.current
}

// SwitchTo moves the current pointer and returns a copy of that version.
func (m *Manager) SwitchTo(index int) (Version, error) {
	if index < 0 || index >= len(m.versions) {
		return Version{}, &OutOfRangeError{Index: index, Length: len(m.versions)}
	}
	m.current = index
	return m.versions[index].Clone(), nil
}

// Current returns the current version and its index; ok is false when empty.
func (m *Manager) Current() (Version, int, bool) {
	if m.current < 0 || m.current >= len(m.versions) {
		return Version{}, -1, false
	}
	return m.versions[m.current].Clone(), m.current, true
}

func (m *Manager) CurrentIndex() int { return m.current }

func (m *Manager) Len() int { return len(m.versions) }

// List returns copies of all versions in creation order.
func (m *Manager) List() []Version {
	out := make([]Version, len(m.versions))
	for i, v := range m.versions {
		out[i] = v.Clone()
	}
	return out
}

// Reset drops every version.
func (m *Manager) Reset() {
	m.versions = nil
	m.current = -1
}

// Restore replaces the history with persisted versions; the newest becomes
// current.
func (m *Manager) Restore(versions []Version) {
	m.Reset()
	for _, v := range versions {
		m.versions = append(m.versions, v.Clone())
	}
	m.current = len(m.versions) - 1
}
