package orchestrator

import (
	"fmt"

	"servicelines-be/pkg/apperr"
	"servicelines-be/pkg/pipeline"
	"servicelines-be/pkg/workflow/selection"
	"servicelines-be/pkg/workflow/version"
)

func checkItem(s *Session, index int) error {
	if index < 0 || index >= len(s.Run.ServiceClasses) {
		return apperr.Validation(fmt.Sprintf("item %d out of range (have %d)", index, len(s.Run.ServiceClasses)))
	}
	return nil
}

// SetSelected toggles whether an item takes part in review and regeneration.
func (o *Orchestrator) SetSelected(index int, selected bool) error {
	_, err := o.apply(0, KindSelectionChanged, -1, index, func(s *Session) error {
		if err := checkItem(s, index); err != nil {
			return err
		}
		s.Selection.SetSelected(index, selected)
		return nil
	})
	return err
}

// SetChoice records whether an item reuses an existing service or the new
// draft.
func (o *Orchestrator) SetChoice(index int, choice selection.Choice) error {
	_, err := o.apply(0, KindSelectionChanged, -1, index, func(s *Session) error {
		if err := checkItem(s, index); err != nil {
			return err
		}
		return s.Selection.SetChoice(index, choice)
	})
	return err
}

// SetCarousel moves the existing-service carousel of an item.
func (o *Orchestrator) SetCarousel(index, position int) error {
	_, err := o.apply(0, KindCarouselMoved, -1, index, func(s *Session) error {
		if err := checkItem(s, index); err != nil {
			return err
		}
		if index >= len(s.Run.TextGenerations) || s.Run.TextGenerations[index] == nil {
			return apperr.Conflict(fmt.Sprintf("item %d has no generated text yet", index))
		}
		gen := s.Run.TextGenerations[index]
		if position < 0 || position >= len(gen.ExistingServices) {
			return apperr.Validation(fmt.Sprintf("carousel position %d out of range (have %d)", position, len(gen.ExistingServices)))
		}
		s.Carousel[index] = position
		return nil
	})
	return err
}

// Review lists the chosen items of the live result set.
func (o *Orchestrator) Review() []selection.ReviewItem {
	o.mu.Lock()
	defer o.mu.Unlock()
	return selection.BuildReview(o.session.Selection, o.session.reviewSource())
}

// Versions returns copies of every version and the current index.
func (o *Orchestrator) Versions() ([]version.Version, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.Versions.List(), o.session.Versions.CurrentIndex()
}

// SwitchVersion makes version index current and projects it onto the live
// result view.
func (o *Orchestrator) SwitchVersion(index int) (version.Version, error) {
	var v version.Version
	_, err := o.apply(0, KindVersionSwitched, -1, index, func(s *Session) error {
		if s.Running {
			return ErrBusy
		}
		switched, err := s.Versions.SwitchTo(index)
		if err != nil {
			return err
		}
		s.project(switched)
		v = switched.Clone()
		return nil
	})
	return v, err
}

// Reset clears the session and supersedes any run in flight.
func (o *Orchestrator) Reset() {
	_, _ = o.apply(0, KindSessionReset, -1, -1, func(s *Session) error {
		s.Reset()
		return nil
	})
}

// RestoreVersions replaces the session with persisted versions. The newest
// version becomes current and its contents are shown; the first version's
// query is taken as the original submission.
func (o *Orchestrator) RestoreVersions(versions []version.Version) {
	_, _ = o.apply(0, KindSessionRestored, -1, -1, func(s *Session) error {
		s.Reset()
		if len(versions) == 0 {
			return nil
		}
		aligned := make([]version.Version, len(versions))
		for i, v := range versions {
			aligned[i] = alignGenerations(v)
		}
		s.Versions.Restore(aligned)
		latest, _, _ := s.Versions.Current()
		s.project(latest)
		s.Run.Query = versions[0].Query
		for stage := range s.completed {
			s.markCompleted(stage)
		}
		s.Complete = true
		return nil
	})
}

// alignGenerations gives v exactly one generation slot per service class.
// Missing slots are left ungenerated and surplus ones are dropped.
func alignGenerations(v version.Version) version.Version {
	if len(v.TextGenerations) == len(v.ServiceClasses) {
		return v
	}
	gens := make([]*pipeline.TextGeneration, len(v.ServiceClasses))
	copy(gens, v.TextGenerations)
	v.TextGenerations = gens
	return v
}
