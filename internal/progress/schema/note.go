package schema

import "strings"

// CompletedSentinel marks a completed task in the remote note_content column.
const CompletedSentinel = "[COMPLETED]"

// NoteRecord is the progress of one task.
type NoteRecord struct {
	Note      string `json:"note"`
	Completed bool   `json:"completed"`
}

// IsZero reports whether the record carries no progress.
func (r NoteRecord) IsZero() bool {
	return r.Note == "" && !r.Completed
}

// NoteSet maps task id to its record. This is the JSON shape of the local
// task notes scope: {"d1-1": {"note": "...", "completed": true}}.
type NoteSet map[string]NoteRecord

// Clone returns a copy that shares nothing with s.
func (s NoteSet) Clone() NoteSet {
	out := make(NoteSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// CompletedCount returns how many of the given task ids are completed.
func (s NoteSet) CompletedCount(taskIDs []string) int {
	n := 0
	for _, id := range taskIDs {
		if s[id].Completed {
			n++
		}
	}
	return n
}

// EncodeNote folds the completed flag into the note text.
func EncodeNote(r NoteRecord) string {
	if r.Completed {
		return CompletedSentinel + r.Note
	}
	return r.Note
}

// DecodeNote splits stored note text into text and flag. Only a leading
// sentinel is significant and the remaining text is returned untouched.
func DecodeNote(s string) NoteRecord {
	if rest, ok := strings.CutPrefix(s, CompletedSentinel); ok {
		return NoteRecord{Note: rest, Completed: true}
	}
	return NoteRecord{Note: s}
}
