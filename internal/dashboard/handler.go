package dashboard

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/blogpad/launchpad/internal/identity"
	"github.com/blogpad/launchpad/internal/onboarding"
	"github.com/blogpad/launchpad/internal/progress/debounce"
	"github.com/blogpad/launchpad/internal/progress/schema"
	"github.com/blogpad/launchpad/internal/stats"
)

// NoteUpdateData is the payload of a note_update message.
type NoteUpdateData struct {
	TaskID    string `json:"task_id"`
	Note      string `json:"note"`
	Completed bool   `json:"completed"`
}

// GuideUnlockData is the payload of a guide_unlock message.
type GuideUnlockData struct {
	GuideID       string `json:"guide_id"`
	NewlyUnlocked []int  `json:"newly_unlocked"`
	Complete      bool   `json:"complete"`
}

// IdentityData is the payload of an identity message.
type IdentityData struct {
	Anonymous bool   `json:"anonymous"`
	UserID    string `json:"user_id,omitempty"`
	Email     string `json:"email,omitempty"`
	Degraded  bool   `json:"degraded"`
}

// CurriculumReloadData is the payload of a curriculum_reload message.
type CurriculumReloadData struct {
	Tasks  int `json:"tasks"`
	Guides int `json:"guides"`
}

// Handler formats progress events as dashboard messages and broadcasts them.
type Handler struct {
	server *Server
	logger *zap.Logger
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{server: server, logger: logger}
}

// OnSaveStatus broadcasts a save indicator change.
func (h *Handler) OnSaveStatus(s debounce.Snapshot) {
	h.send(MessageTypeSaveStatus, s)
}

// OnNoteUpdated broadcasts an edited note and the recomputed progress.
func (h *Handler) OnNoteUpdated(taskID string, rec schema.NoteRecord, overview stats.Overview) {
	h.logger.Debug("note updated", zap.String("task", taskID), zap.Bool("completed", rec.Completed))
	h.send(MessageTypeNoteUpdate, NoteUpdateData{TaskID: taskID, Note: rec.Note, Completed: rec.Completed})
	h.OnProgress(overview)
}

// OnProgress broadcasts completion percentages.
func (h *Handler) OnProgress(overview stats.Overview) {
	h.send(MessageTypeProgress, overview)
}

// OnGuideUnlocked broadcasts sections unlocked by a submit.
func (h *Handler) OnGuideUnlocked(guideID string, newly []int, complete bool) {
	h.logger.Debug("guide sections unlocked", zap.String("guide", guideID), zap.Ints("sections", newly))
	h.send(MessageTypeGuideUnlock, GuideUnlockData{GuideID: guideID, NewlyUnlocked: newly, Complete: complete})
}

// OnIdentity broadcasts the current session.
func (h *Handler) OnIdentity(s identity.Session, degraded bool) {
	h.send(MessageTypeIdentity, NewIdentityData(s, degraded))
}

// OnOnboarding broadcasts the onboarding status.
func (h *Handler) OnOnboarding(st onboarding.Status) {
	h.send(MessageTypeOnboarding, st)
}

// OnCurriculumReload broadcasts that the curriculum was replaced.
func (h *Handler) OnCurriculumReload(tasks, guides int) {
	h.logger.Info("curriculum reloaded", zap.Int("tasks", tasks), zap.Int("guides", guides))
	h.send(MessageTypeCurriculumReload, CurriculumReloadData{Tasks: tasks, Guides: guides})
}

func (h *Handler) send(typ MessageType, data any) {
	msg, err := NewMessage(typ, data)
	if err != nil {
		h.logger.Warn("failed to marshal message", zap.String("type", string(typ)), zap.Error(err))
		return
	}
	h.server.Broadcast(msg)
}

// NewMessage builds a message of type typ carrying data as JSON.
func NewMessage(typ MessageType, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: typ, Timestamp: time.Now(), Data: raw}, nil
}

// NewIdentityData builds the identity payload of session s.
func NewIdentityData(s identity.Session, degraded bool) IdentityData {
	d := IdentityData{Anonymous: s.User == nil, Degraded: degraded}
	if s.User != nil {
		d.UserID = s.User.ID
		d.Email = s.User.Email
	}
	return d
}
