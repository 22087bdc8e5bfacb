// Package schema defines the progress records shared by the local store, the
// remote store and the reconciliation engine.
//
// # Records
//
//   - NoteRecord: free-text note plus an independent completed flag, keyed by
//     task id. Completion never rewrites the note text.
//   - OnboardingRecord: the ten wizard answers, each optional. A nil field
//     means "not yet answered" and is distinct from an empty answer.
//   - GuideProgress: exercise responses plus the set of unlocked sections.
//
// # Scopes
//
// Every record lives under a Scope (the task notes namespace, the onboarding
// profile, or one guide). Local storage keys combine the scope with the
// identity, so anonymous and authenticated data never share a key:
//
//	anonymous/notes
//	user:4f1c.../guide:define-your-niche
//
// # Wire encoding
//
// The remote task notes table has no completion column. EncodeNote folds the
// flag into the text as a "[COMPLETED]" prefix and DecodeNote strips it
// again. Only the remote adapter calls these; everything above it sees the
// decoded NoteRecord.
package schema
