package orchestrator

// UpdateKind names the transition that produced an Update.
type UpdateKind string

const (
	KindSessionReset          UpdateKind = "session_reset"
	KindSessionRestored       UpdateKind = "session_restored"
	KindRunStarted            UpdateKind = "run_started"
	KindStageStarted          UpdateKind = "stage_started"
	KindStageCompleted        UpdateKind = "stage_completed"
	KindItemRevealed          UpdateKind = "item_revealed"
	KindItemGenerating        UpdateKind = "item_generating"
	KindItemGenerated         UpdateKind = "item_generated"
	KindRunCompleted          UpdateKind = "run_completed"
	KindRunFailed             UpdateKind = "run_failed"
	KindRegenerationStarted   UpdateKind = "regeneration_started"
	KindItemRegenerating      UpdateKind = "item_regenerating"
	KindItemRegenerated       UpdateKind = "item_regenerated"
	KindItemRegenFailed       UpdateKind = "item_regeneration_failed"
	KindRegenerationCompleted UpdateKind = "regeneration_completed"
	KindVersionCreated        UpdateKind = "version_created"
	KindVersionSwitched       UpdateKind = "version_switched"
	KindSelectionChanged      UpdateKind = "selection_changed"
	KindCarouselMoved         UpdateKind = "carousel_moved"
)

// Update is emitted after every state transition. Stage and Index are -1
// when they do not apply; for version events Index is the version index.
type Update struct {
	Kind  UpdateKind `json:"kind"`
	Stage int        `json:"stage"`
	Index int        `json:"index"`
	State State      `json:"state"`
}

// Listener receives updates in emission order. Implementations may read
// from the orchestrator but must not mutate it from inside OnUpdate.
type Listener interface {
	OnUpdate(u Update)
}

type ListenerFunc func(u Update)

func (f ListenerFunc) OnUpdate(u Update) { f(u) }
