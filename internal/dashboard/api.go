package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/blogpad/launchpad/internal/curriculum"
	"github.com/blogpad/launchpad/internal/guide"
	"github.com/blogpad/launchpad/internal/identity"
	"github.com/blogpad/launchpad/internal/notes"
	"github.com/blogpad/launchpad/internal/onboarding"
	"github.com/blogpad/launchpad/internal/progress/debounce"
	"github.com/blogpad/launchpad/internal/progress/reconcile"
	"github.com/blogpad/launchpad/internal/progress/schema"
	"github.com/blogpad/launchpad/internal/stats"
)

// StateSource reports the session state of the progress layer.
// *reconcile.Engine satisfies it.
type StateSource interface {
	State() reconcile.State
}

// SaveStatus reports the save indicator. *debounce.Coordinator satisfies it.
type SaveStatus interface {
	Snapshot() debounce.Snapshot
}

// Backend is what the API serves.
type Backend struct {
	Notes      *notes.Service
	Onboarding *onboarding.Service
	Guides     *guide.Service
	Auth       identity.Provider
	State      StateSource
	Saves      SaveStatus
	Catalog    func() *curriculum.Catalog
	Policy     onboarding.Policy

	// Events receives change notifications. Nil disables broadcasting.
	Events *Handler
}

// API is the JSON API of the dashboard.
type API struct {
	b      Backend
	mux    *http.ServeMux
	logger *zap.Logger
}

// NewAPI creates the API handler. Routes live under /api/.
func NewAPI(b Backend, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &API{b: b, mux: http.NewServeMux(), logger: logger}

	a.mux.HandleFunc("GET /api/session", a.getSession)
	a.mux.HandleFunc("POST /api/session/signin", a.signIn)
	a.mux.HandleFunc("POST /api/session/signup", a.signUp)
	a.mux.HandleFunc("POST /api/session/signout", a.signOut)

	a.mux.HandleFunc("GET /api/notes", a.listNotes)
	a.mux.HandleFunc("DELETE /api/notes", a.resetNotes)
	a.mux.HandleFunc("GET /api/notes/{taskID}", a.getNote)
	a.mux.HandleFunc("PUT /api/notes/{taskID}", a.putNote)
	a.mux.HandleFunc("POST /api/notes/{taskID}/toggle", a.toggleNote)

	a.mux.HandleFunc("GET /api/progress", a.getProgress)
	a.mux.HandleFunc("GET /api/curriculum", a.getCurriculum)

	a.mux.HandleFunc("GET /api/onboarding", a.getOnboarding)
	a.mux.HandleFunc("GET /api/onboarding/status", a.getOnboardingStatus)
	a.mux.HandleFunc("GET /api/onboarding/gate", a.getOnboardingGate)
	a.mux.HandleFunc("PUT /api/onboarding/{field}", a.putOnboarding)

	a.mux.HandleFunc("GET /api/guides/{id}", a.getGuide)
	a.mux.HandleFunc("PUT /api/guides/{id}/responses/{key}", a.putResponse)
	a.mux.HandleFunc("POST /api/guides/{id}/sections/{index}/submit", a.submitSection)

	a.mux.HandleFunc("GET /api/save-status", a.getSaveStatus)
	return a
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

// SessionResponse is the body of the session endpoints.
type SessionResponse struct {
	Session  identity.Session `json:"session"`
	Degraded bool             `json:"degraded"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type noteBody struct {
	Note      string `json:"note"`
	Completed bool   `json:"completed"`
}

type valueBody struct {
	Value string `json:"value"`
}

// NoteResponse is the body returned for a single note.
type NoteResponse struct {
	TaskID    string `json:"task_id"`
	Note      string `json:"note"`
	Completed bool   `json:"completed"`
}

// ResetResponse is the body of a notes reset.
type ResetResponse struct {
	Reset bool `json:"reset"`
	// Degraded is set when the remote copy could not be cleared yet.
	Degraded bool `json:"degraded"`
}

// GateResponse tells the client whether to show the onboarding wizard.
type GateResponse struct {
	Redirect bool `json:"redirect"`
	Enforced bool `json:"enforced"`
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.session())
}

func (a *API) signIn(w http.ResponseWriter, r *http.Request) {
	a.authenticate(w, r, a.b.Auth.SignIn)
}

func (a *API) signUp(w http.ResponseWriter, r *http.Request) {
	a.authenticate(w, r, a.b.Auth.SignUp)
}

func (a *API) authenticate(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, email, password string) error) {
	var c credentials
	if !a.decode(w, r, &c) {
		return
	}
	if err := fn(r.Context(), c.Email, c.Password); err != nil {
		a.fail(w, err)
		return
	}
	resp := a.session()
	if a.b.Events != nil {
		a.b.Events.OnIdentity(resp.Session, resp.Degraded)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) signOut(w http.ResponseWriter, r *http.Request) {
	if err := a.b.Auth.SignOut(r.Context()); err != nil {
		a.fail(w, err)
		return
	}
	resp := a.session()
	if a.b.Events != nil {
		a.b.Events.OnIdentity(resp.Session, resp.Degraded)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) session() SessionResponse {
	resp := SessionResponse{Session: a.b.Auth.Current()}
	if a.b.State != nil {
		resp.Degraded = a.b.State.State().Degraded
	}
	return resp
}

func (a *API) listNotes(w http.ResponseWriter, r *http.Request) {
	v, err := a.b.Notes.All(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) getNote(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("taskID")
	rec, err := a.b.Notes.Get(r.Context(), taskID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NoteResponse{TaskID: taskID, Note: rec.Note, Completed: rec.Completed})
}

func (a *API) putNote(w http.ResponseWriter, r *http.Request) {
	var body noteBody
	if !a.decode(w, r, &body) {
		return
	}
	taskID := r.PathValue("taskID")
	rec, err := a.b.Notes.Edit(r.Context(), taskID, body.Note, body.Completed)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.noteChanged(r.Context(), taskID, rec)
	writeJSON(w, http.StatusOK, NoteResponse{TaskID: taskID, Note: rec.Note, Completed: rec.Completed})
}

func (a *API) toggleNote(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("taskID")
	rec, err := a.b.Notes.Toggle(r.Context(), taskID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.noteChanged(r.Context(), taskID, rec)
	writeJSON(w, http.StatusOK, NoteResponse{TaskID: taskID, Note: rec.Note, Completed: rec.Completed})
}

func (a *API) resetNotes(w http.ResponseWriter, r *http.Request) {
	resp := ResetResponse{Reset: true}
	if err := a.b.Notes.Reset(r.Context()); err != nil {
		if !errors.Is(err, schema.ErrRemoteUnavailable) {
			a.fail(w, err)
			return
		}
		resp.Degraded = true
	}
	if a.b.Events != nil {
		a.b.Events.OnProgress(stats.Compute(a.b.Catalog(), schema.NoteSet{}))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) noteChanged(ctx context.Context, taskID string, rec schema.NoteRecord) {
	if a.b.Events == nil {
		return
	}
	v, err := a.b.Notes.All(ctx)
	if err != nil {
		a.logger.Debug("progress not recomputed", zap.Error(err))
		return
	}
	a.b.Events.OnNoteUpdated(taskID, rec, stats.Compute(a.b.Catalog(), v.Notes))
}

// ProgressResponse is the body of the progress endpoint.
type ProgressResponse struct {
	stats.Overview
	Degraded bool `json:"degraded"`
}

func (a *API) getProgress(w http.ResponseWriter, r *http.Request) {
	v, err := a.b.Notes.All(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ProgressResponse{
		Overview: stats.Compute(a.b.Catalog(), v.Notes),
		Degraded: v.Degraded,
	})
}

// CurriculumResponse lists the checklist and the guides.
type CurriculumResponse struct {
	Categories []curriculum.Category `json:"categories"`
	Guides     []*guide.Definition   `json:"guides"`
}

func (a *API) getCurriculum(w http.ResponseWriter, r *http.Request) {
	c := a.b.Catalog()
	writeJSON(w, http.StatusOK, CurriculumResponse{Categories: c.Categories(), Guides: c.Guides()})
}

func (a *API) getOnboarding(w http.ResponseWriter, r *http.Request) {
	v, err := a.b.Onboarding.Get(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) getOnboardingStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.b.Onboarding.Status(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) getOnboardingGate(w http.ResponseWriter, r *http.Request) {
	v, err := a.b.Onboarding.Get(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GateResponse{
		Redirect: a.b.Policy.Gate(v.Record),
		Enforced: a.b.Policy.Enforce,
	})
}

func (a *API) putOnboarding(w http.ResponseWriter, r *http.Request) {
	var body valueBody
	if !a.decode(w, r, &body) {
		return
	}
	v, err := a.b.Onboarding.Set(r.Context(), r.PathValue("field"), body.Value)
	if err != nil {
		a.fail(w, err)
		return
	}
	if a.b.Events != nil {
		a.b.Events.OnOnboarding(v.Status)
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) getGuide(w http.ResponseWriter, r *http.Request) {
	v, err := a.b.Guides.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) putResponse(w http.ResponseWriter, r *http.Request) {
	var body valueBody
	if !a.decode(w, r, &body) {
		return
	}
	v, err := a.b.Guides.SetResponse(r.Context(), r.PathValue("id"), r.PathValue("key"), body.Value)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) submitSection(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "section index must be an integer")
		return
	}
	guideID := r.PathValue("id")
	res, err := a.b.Guides.Submit(r.Context(), guideID, index)
	if err != nil {
		a.fail(w, err)
		return
	}
	if a.b.Events != nil && len(res.NewlyUnlocked) > 0 {
		a.b.Events.OnGuideUnlocked(guideID, res.NewlyUnlocked, res.View.Complete)
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) getSaveStatus(w http.ResponseWriter, r *http.Request) {
	if a.b.Saves == nil {
		writeJSON(w, http.StatusOK, debounce.Snapshot{Status: debounce.StatusIdle})
		return
	}
	writeJSON(w, http.StatusOK, a.b.Saves.Snapshot())
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// fail maps err to a status code and writes it.
func (a *API) fail(w http.ResponseWriter, err error) {
	var verr *schema.ValidationError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   err.Error(),
			Section: &verr.Section,
			Missing: verr.Missing,
		})
		return
	case errors.Is(err, schema.ErrValidationFailed),
		errors.Is(err, identity.ErrInvalidEmail),
		errors.Is(err, identity.ErrWeakPassword):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, notes.ErrUnknownTask),
		errors.Is(err, guide.ErrUnknownGuide),
		errors.Is(err, guide.ErrNoSection):
		status = http.StatusNotFound
	case errors.Is(err, guide.ErrSectionLocked),
		errors.Is(err, guide.ErrNoExercise),
		errors.Is(err, identity.ErrAccountExists),
		errors.Is(err, reconcile.ErrIdentityChanged):
		status = http.StatusConflict
	case errors.Is(err, identity.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, schema.ErrRemoteUnavailable),
		errors.Is(err, schema.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, status, err.Error())
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Section *int     `json:"section,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
