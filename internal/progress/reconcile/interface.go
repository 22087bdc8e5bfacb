package reconcile

import (
	"context"
	"errors"

	"github.com/blogpad/launchpad/internal/progress/schema"
)

// ErrIdentityChanged is returned when the signed-in user changed while a call
// was in flight. The result belongs to the previous user and must be
// discarded.
var ErrIdentityChanged = errors.New("identity changed during operation")

// Local is the on-device tier. Implementations never fail reads: anything
// unusable reads as absent. Write errors are informational.
//
// *local.Store satisfies this interface.
type Local interface {
	// Load decodes the document at key into dst and reports whether one was
	// found.
	Load(ctx context.Context, key string, dst any) bool

	// Save stores v at key.
	Save(ctx context.Context, key string, v any) error

	// Clear removes the document at key.
	Clear(ctx context.Context, key string) error
}

// Remote is the shared, per-user tier. Every error wraps
// schema.ErrRemoteUnavailable; a record that was never written loads as nil
// without error.
//
// *remote.Store satisfies this interface.
type Remote interface {
	// LoadNotes returns every task note of the user.
	LoadNotes(ctx context.Context, userID string) (schema.NoteSet, error)

	// UpsertNote writes one task note, replacing the stored one.
	UpsertNote(ctx context.Context, userID, taskID string, rec schema.NoteRecord) error

	// DeleteNotes removes every task note of the user.
	DeleteNotes(ctx context.Context, userID string) error

	// LoadOnboarding returns the user's onboarding profile.
	LoadOnboarding(ctx context.Context, userID string) (*schema.OnboardingRecord, error)

	// UpsertOnboarding merges the answered fields of patch into the profile.
	UpsertOnboarding(ctx context.Context, userID string, patch schema.OnboardingRecord) error

	// LoadGuide returns the user's progress through one guide.
	LoadGuide(ctx context.Context, userID, guideID string) (*schema.GuideProgress, error)

	// UpsertGuide writes the full progress of one guide.
	UpsertGuide(ctx context.Context, userID, guideID string, p schema.GuideProgress) error
}
