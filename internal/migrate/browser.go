// Package migrate imports progress exported from the browser app's
// localStorage into the current identity's scopes.
//
// The export is a JSON object of localStorage entries. Values may be the raw
// strings the browser stores or already-decoded JSON:
//
//	{
//	  "blogLaunchPad_notes": "{\"d1-1\":{\"note\":\"...\",\"completed\":true}}",
//	  "guide_define-your-niche_responses": {"responses": {...}, "unlockedSections": [0, 1]}
//	}
package migrate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blogpad/launchpad/internal/curriculum"
	"github.com/blogpad/launchpad/internal/guide"
	"github.com/blogpad/launchpad/internal/progress/schema"
)

// localStorage keys written by the browser app.
const (
	NotesKey    = "blogLaunchPad_notes"
	guidePrefix = "guide_"
	guideSuffix = "_responses"
)

// Export is a decoded browser export.
type Export struct {
	Notes  schema.NoteSet
	Guides map[string]schema.GuideProgress
	// Ignored lists entries that are not progress data.
	Ignored []string
}

// Target receives imported progress. *reconcile.Engine satisfies it.
type Target interface {
	SaveNote(ctx context.Context, taskID string, rec schema.NoteRecord) error
	Guide(ctx context.Context, guideID string) (schema.GuideProgress, error)
	SaveGuide(ctx context.Context, guideID string, p schema.GuideProgress) error
}

// Catalog resolves task and guide ids.
type Catalog interface {
	Task(id string) (curriculum.Task, bool)
	Guide(id string) (*guide.Definition, bool)
}

// Options contains configuration for the import.
type Options struct {
	From   string // export file path
	DryRun bool   // count without writing
	Backup bool   // copy the export next to itself first
	Logger *zap.Logger
}

// Result contains statistics about the import.
type Result struct {
	NotesImported  int      `json:"notes_imported"`
	GuidesImported int      `json:"guides_imported"`
	Skipped        int      `json:"skipped"`
	Deferred       int      `json:"deferred"` // kept locally, remote write pending
	BackupCreated  string   `json:"backup_created,omitempty"`
	Errors         []string `json:"errors,omitempty"`
}

// ParseExport decodes an export document.
func ParseExport(data []byte) (*Export, error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("invalid export: %w", err)
	}

	exp := &Export{Guides: make(map[string]schema.GuideProgress)}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw := unwrapString(entries[key])
		switch {
		case key == NotesKey:
			var notes schema.NoteSet
			if err := json.Unmarshal(raw, &notes); err != nil {
				return nil, fmt.Errorf("%w: %s: %w", schema.ErrSerialization, key, err)
			}
			exp.Notes = notes
		case strings.HasPrefix(key, guidePrefix) && strings.HasSuffix(key, guideSuffix):
			id := strings.TrimSuffix(strings.TrimPrefix(key, guidePrefix), guideSuffix)
			if id == "" {
				exp.Ignored = append(exp.Ignored, key)
				continue
			}
			p := schema.NewGuideProgress()
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, fmt.Errorf("%w: %s: %w", schema.ErrSerialization, key, err)
			}
			if p.Responses == nil {
				p.Responses = map[string]string{}
			}
			exp.Guides[id] = p
		default:
			exp.Ignored = append(exp.Ignored, key)
		}
	}
	return exp, nil
}

// unwrapString returns the JSON inside a JSON string, or raw itself.
func unwrapString(raw json.RawMessage) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return trimmed
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return trimmed
	}
	return []byte(s)
}

// ReadExport reads and decodes an export file.
func ReadExport(path string) (*Export, error) {
	// #nosec G304 - controlled path from CLI
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}
	return ParseExport(data)
}

// Import writes the export into target. Notes replace the stored ones. Guide
// answers fill only blank stored answers and unlocked sections are merged,
// so an import never loses progress made since the export.
func Import(ctx context.Context, target Target, catalog Catalog, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	result := &Result{}

	if _, err := os.Stat(opts.From); err != nil {
		return nil, fmt.Errorf("export file does not exist: %w", err)
	}

	if opts.Backup && !opts.DryRun {
		backupPath := opts.From + ".backup." + time.Now().Format("20060102-150405")
		input, err := os.ReadFile(opts.From)
		if err != nil {
			return nil, fmt.Errorf("failed to read export for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0600); err != nil {
			return nil, fmt.Errorf("failed to create backup: %w", err)
		}
		result.BackupCreated = backupPath
	}

	exp, err := ReadExport(opts.From)
	if err != nil {
		return nil, err
	}
	for _, key := range exp.Ignored {
		logger.Debug("export entry ignored", zap.String("key", key))
	}

	taskIDs := make([]string, 0, len(exp.Notes))
	for id := range exp.Notes {
		taskIDs = append(taskIDs, id)
	}
	sort.Strings(taskIDs)

	for _, taskID := range taskIDs {
		if _, ok := catalog.Task(taskID); !ok {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("unknown task %s", taskID))
			continue
		}
		if !opts.DryRun {
			if err := target.SaveNote(ctx, taskID, exp.Notes[taskID]); err != nil {
				if !errors.Is(err, schema.ErrRemoteUnavailable) {
					result.Errors = append(result.Errors, fmt.Sprintf("failed to import note %s: %v", taskID, err))
					continue
				}
				result.Deferred++
			}
		}
		result.NotesImported++
	}

	guideIDs := make([]string, 0, len(exp.Guides))
	for id := range exp.Guides {
		guideIDs = append(guideIDs, id)
	}
	sort.Strings(guideIDs)

	for _, guideID := range guideIDs {
		def, ok := catalog.Guide(guideID)
		if !ok {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("unknown guide %s", guideID))
			continue
		}
		if !opts.DryRun {
			deferred, err := importGuide(ctx, target, def, exp.Guides[guideID])
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("failed to import guide %s: %v", guideID, err))
				continue
			}
			if deferred {
				result.Deferred++
			}
		}
		result.GuidesImported++
	}

	logger.Info("browser export imported",
		zap.String("from", opts.From),
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("notes", result.NotesImported),
		zap.Int("guides", result.GuidesImported),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func importGuide(ctx context.Context, target Target, def *guide.Definition, imported schema.GuideProgress) (bool, error) {
	deferred := false
	current, err := target.Guide(ctx, def.ID)
	if err != nil {
		if !errors.Is(err, schema.ErrRemoteUnavailable) {
			return false, err
		}
		deferred = true
	}

	merged := current.Clone()
	for key, val := range imported.Responses {
		if strings.TrimSpace(merged.Responses[key]) == "" {
			merged.Responses[key] = val
		}
	}
	valid := make([]int, 0, len(imported.UnlockedSections))
	for _, i := range imported.UnlockedSections {
		if i < len(def.Sections) {
			valid = append(valid, i)
		}
	}
	merged.UnlockedSections = guide.Normalize(def.Sections,
		merged.UnlockedSections.Union(schema.NewSectionSet(valid...)))

	if err := target.SaveGuide(ctx, def.ID, merged); err != nil {
		if !errors.Is(err, schema.ErrRemoteUnavailable) {
			return false, err
		}
		deferred = true
	}
	return deferred, nil
}
