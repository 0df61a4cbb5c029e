// Package selection tracks which generated line items the user picked and
// whether each one keeps an existing service or the new draft.
package selection

import (
	"fmt"
	"net/http"
	"sort"

	"servicelines-be/pkg/apperr"
	"servicelines-be/pkg/pipeline"
)

type Choice string

const (
	ChoiceNone     Choice = ""
	ChoiceExisting Choice = "existing"
	ChoiceNew      Choice = "new"
)

// ParseChoice accepts "existing" and "new".
func ParseChoice(s string) (Choice, error) {
	switch Choice(s) {
	case ChoiceExisting, ChoiceNew:
		return Choice(s), nil
	}
	return ChoiceNone, apperr.Validation(fmt.Sprintf("invalid choice %q: want \"existing\" or \"new\"", s))
}

// Entry exists only for checked items.
type Entry struct {
	Choice Choice `json:"choice"`
}

// NotSelectedError is returned by a strict Model when a choice is set on an
// unchecked item.
type NotSelectedError struct {
	Index int
}

func (e *NotSelectedError) Error() string {
	return fmt.Sprintf("item %d is not selected", e.Index)
}

func (e *NotSelectedError) StatusCode() int { return http.StatusConflict }

func (e *NotSelectedError) Is(target error) bool { return target == apperr.ErrConflict }

// Model is keyed by item index. Not safe for concurrent use.
type Model struct {
	entries map[int]*Entry
	strict  bool
}

// NewModel returns an empty model. A strict model refuses SetChoice on an
// index that was never selected; a permissive one creates the entry.
func NewModel(strict bool) *Model {
	return &Model{entries: make(map[int]*Entry), strict: strict}
}

// SetSelected checks (creating an entry with no choice) or unchecks (removing
// the entry entirely) an item.
func (m *Model) SetSelected(index int, selected bool) {
	if !selected {
		delete(m.entries, index)
		return
	}
	if _, ok := m.entries[index]; !ok {
		m.entries[index] = &Entry{}
	}
}

func (m *Model) SetChoice(index int, choice Choice) error {
	if choice != ChoiceExisting && choice != ChoiceNew {
		return apperr.Validation(fmt.Sprintf("invalid choice %q", choice))
	}
	e, ok := m.entries[index]
	if !ok {
		if m.strict {
			return &NotSelectedError{Index: index}
		}
		e = &Entry{}
		m.entries[index] = e
	}
	e.Choice = choice
	return nil
}

func (m *Model) Entry(index int) (Entry, bool) {
	e, ok := m.entries[index]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Selected returns the checked indices in ascending order.
func (m *Model) Selected() []int {
	out := make([]int, 0, len(m.entries))
	for idx := range m.entries {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Entries returns a copy of all entries.
func (m *Model) Entries() map[int]Entry {
	out := make(map[int]Entry, len(m.entries))
	for idx, e := range m.entries {
		out[idx] = *e
	}
	return out
}

func (m *Model) Reset() {
	m.entries = make(map[int]*Entry)
}

// ReviewItem is a derived row of the review list.
type ReviewItem struct {
	Index                 int                       `json:"index"`
	ServiceType           string                    `json:"serviceType"`
	Choice                Choice                    `json:"choice"`
	ChosenExistingService *pipeline.ExistingService `json:"chosenExistingService,omitempty"`
	GeneratedText         string                    `json:"generatedText"`
	SourceServiceClass    pipeline.ServiceClass     `json:"sourceServiceClass"`
}

// Source is the live result set review rows are resolved against.
type Source struct {
	ServiceClasses  []pipeline.ServiceClass
	TextGenerations []*pipeline.TextGeneration
	Carousel        map[int]int
}

// BuildReview projects entries with a choice onto src, ascending by index.
// Entries pointing past the result set are skipped.
func BuildReview(m *Model, src Source) []ReviewItem {
	items := make([]ReviewItem, 0, len(m.entries))
	for _, idx := range m.Selected() {
		e := m.entries[idx]
		if e.Choice == ChoiceNone {
			continue
		}
		if idx < 0 || idx >= len(src.ServiceClasses) {
			continue
		}
		cls := src.ServiceClasses[idx]
		item := ReviewItem{
			Index:              idx,
			ServiceType:        cls.Type,
			Choice:             e.Choice,
			SourceServiceClass: cls,
		}

		var gen *pipeline.TextGeneration
		if idx < len(src.TextGenerations) {
			gen = src.TextGenerations[idx]
		}
		if gen != nil {
			item.GeneratedText = gen.New
			if e.Choice == ChoiceExisting && len(gen.ExistingServices) > 0 {
				pos := clamp(src.Carousel[idx], len(gen.ExistingServices))
				chosen := gen.ExistingServices[pos]
				item.ChosenExistingService = &chosen
			}
		}
		items = append(items, item)
	}
	return items
}

func clamp(pos, n int) int {
	if pos < 0 {
		return 0
	}
	if pos >= n {
		return n - 1
	}
	return pos
}
