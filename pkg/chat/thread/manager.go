package thread

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"servicelines-be/pkg/apperr"

	"github.com/google/uuid"
)

// LastThreadError is returned when deleting the only remaining thread.
type LastThreadError struct {
	ID string
}

func (e *LastThreadError) Error() string {
	return fmt.Sprintf("cannot delete thread %s: it is the last remaining thread", e.ID)
}

func (e *LastThreadError) StatusCode() int { return http.StatusConflict }

func (e *LastThreadError) Is(target error) bool { return target == apperr.ErrValidation }

// Manager owns a keyed collection of threads and the current-thread
// pointer. Not safe for concurrent use.
type Manager struct {
	threads map[string]*Thread
	current string
	now     func() time.Time
	newID   func() string
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{
		threads: make(map[string]*Thread),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// WithClock overrides the time source, mostly for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Create adds a fresh thread without making it current.
func (m *Manager) Create() *Thread {
	ts := m.now()
	t := &Thread{
		ID:              m.newID(),
		Title:           DefaultTitle,
		CreatedAt:       ts,
		LastActivity:    ts,
		PipelineHistory: []HistoryItem{},
	}
	m.threads[t.ID] = t
	return t.Clone()
}

// EnsureCurrent guarantees a current thread exists, creating one on first
// launch. It reports whether a thread was created.
func (m *Manager) EnsureCurrent() (*Thread, bool) {
	if t, ok := m.threads[m.current]; ok {
		return t.Clone(), false
	}
	if len(m.threads) > 0 {
		m.current = m.mostRecent()
		return m.threads[m.current].Clone(), false
	}
	t := m.Create()
	m.current = t.ID
	return t, true
}

// Select makes id current. changed is false when id already was current;
// when true the caller must reset its live session.
func (m *Manager) Select(id string) (changed bool, err error) {
	if _, ok := m.threads[id]; !ok {
		return false, apperr.NotFound(fmt.Sprintf("thread %s not found", id))
	}
	if id == m.current {
		return false, nil
	}
	m.current = id
	return true, nil
}

// Delete removes id. When id was current the most recently active remaining
// thread becomes current and switched is true.
func (m *Manager) Delete(id string) (switched bool, err error) {
	if _, ok := m.threads[id]; !ok {
		return false, apperr.NotFound(fmt.Sprintf("thread %s not found", id))
	}
	if len(m.threads) <= 1 {
		return false, &LastThreadError{ID: id}
	}
	delete(m.threads, id)
	if id != m.current {
		return false, nil
	}
	m.current = m.mostRecent()
	return true, nil
}

// AppendHistory prepends item to the thread's history, keeping the newest
// MaxHistory entries.
func (m *Manager) AppendHistory(id string, item HistoryItem) error {
	t, ok := m.threads[id]
	if !ok {
		return apperr.NotFound(fmt.Sprintf("thread %s not found", id))
	}
	history := make([]HistoryItem, 0, len(t.PipelineHistory)+1)
	history = append(history, item.Clone())
	history = append(history, t.PipelineHistory...)
	if len(history) > MaxHistory {
		history = history[:MaxHistory]
	}
	t.PipelineHistory = history
	t.LastActivity = m.now()
	return nil
}

// UpdateTitle stamps a submission on the thread.
func (m *Manager) UpdateTitle(id, query string) error {
	t, ok := m.threads[id]
	if !ok {
		return apperr.NotFound(fmt.Sprintf("thread %s not found", id))
	}
	t.Title = TruncateTitle(query)
	t.LastActivity = m.now()
	t.HasSubmittedPrompt = true
	return nil
}

func (m *Manager) CurrentID() string { return m.current }

func (m *Manager) Current() (*Thread, bool) {
	t, ok := m.threads[m.current]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

func (m *Manager) Get(id string) (*Thread, bool) {
	t, ok := m.threads[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

func (m *Manager) Len() int { return len(m.threads) }

// List returns all threads, most recently active first.
func (m *Manager) List() []*Thread {
	out := make([]*Thread, 0, len(m.threads))
	for _, t := range m.threads {
		out = append(out, t.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// Snapshot returns copies of the collection and the current id for
// persistence.
func (m *Manager) Snapshot() (map[string]*Thread, string) {
	out := make(map[string]*Thread, len(m.threads))
	for id, t := range m.threads {
		out[id] = t.Clone()
	}
	return out, m.current
}

// Restore replaces the collection. An unknown current id falls back to the
// most recently active thread.
func (m *Manager) Restore(threads map[string]*Thread, current string) {
	m.threads = make(map[string]*Thread, len(threads))
	for id, t := range threads {
		if t == nil {
			continue
		}
		c := t.Clone()
		c.ID = id
		if c.PipelineHistory == nil {
			c.PipelineHistory = []HistoryItem{}
		}
		if len(c.PipelineHistory) > MaxHistory {
			c.PipelineHistory = c.PipelineHistory[:MaxHistory]
		}
		m.threads[id] = c
	}
	m.current = current
	if _, ok := m.threads[current]; !ok {
		m.current = m.mostRecent()
	}
}

func (m *Manager) mostRecent() string {
	best := ""
	var bestAt time.Time
	for id, t := range m.threads {
		if best == "" || t.LastActivity.After(bestAt) || (t.LastActivity.Equal(bestAt) && id < best) {
			best = id
			bestAt = t.LastActivity
		}
	}
	return best
}
