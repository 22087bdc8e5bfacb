// Package guide implements the section unlock state machine of multi-section
// guides.
//
// Section 0 is always unlocked. An unlocked section without an exercise
// unlocks its successor, cascading through consecutive exercise-less
// sections; this is recomputed from the section list on every load rather
// than stored. A section with an exercise unlocks its successor when every
// required field holds a non-blank answer. Sections never re-lock.
package guide

import "fmt"

// Field is one input of a structured exercise.
type Field struct {
	ID          string   `yaml:"id" json:"id"`
	Label       string   `yaml:"label,omitempty" json:"label,omitempty"`
	Type        string   `yaml:"type,omitempty" json:"type,omitempty"` // text, textarea, select, radio
	Options     []string `yaml:"options,omitempty" json:"options,omitempty"`
	Placeholder string   `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	Optional    bool     `yaml:"optional,omitempty" json:"optional,omitempty"`
}

// Exercise is the work that gates the next section. Without Fields it is a
// single input whose answer is stored under the exercise id.
type Exercise struct {
	ID          string  `yaml:"id" json:"id"`
	Prompt      string  `yaml:"prompt" json:"prompt"`
	Fields      []Field `yaml:"fields,omitempty" json:"fields,omitempty"`
	Placeholder string  `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	Multiline   bool    `yaml:"multiline,omitempty" json:"multiline,omitempty"`
}

// ResponseKeys returns the response keys this exercise writes.
func (e *Exercise) ResponseKeys() []string {
	if len(e.Fields) == 0 {
		return []string{e.ID}
	}
	keys := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		keys[i] = f.ID
	}
	return keys
}

// Section is one step of a guide.
type Section struct {
	Title    string    `yaml:"title" json:"title"`
	Exercise *Exercise `yaml:"exercise,omitempty" json:"exercise,omitempty"`
}

// Definition is the static structure of a guide.
type Definition struct {
	ID           string    `yaml:"id" json:"id"`
	Title        string    `yaml:"title" json:"title"`
	TimeEstimate string    `yaml:"time_estimate,omitempty" json:"time_estimate,omitempty"`
	Difficulty   string    `yaml:"difficulty,omitempty" json:"difficulty,omitempty"`
	Prev         string    `yaml:"prev,omitempty" json:"prev,omitempty"`
	Next         string    `yaml:"next,omitempty" json:"next,omitempty"`
	Sections     []Section `yaml:"sections" json:"sections"`
}

// Validate checks the structure: at least one section and unique response
// keys.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("guide id is required")
	}
	if len(d.Sections) == 0 {
		return fmt.Errorf("guide %s: at least one section is required", d.ID)
	}
	seen := make(map[string]int)
	for i, s := range d.Sections {
		if s.Title == "" {
			return fmt.Errorf("guide %s: section %d has no title", d.ID, i)
		}
		if s.Exercise == nil {
			continue
		}
		if s.Exercise.ID == "" {
			return fmt.Errorf("guide %s: section %d exercise has no id", d.ID, i)
		}
		for _, key := range s.Exercise.ResponseKeys() {
			if key == "" {
				return fmt.Errorf("guide %s: section %d has a field without id", d.ID, i)
			}
			if prev, dup := seen[key]; dup {
				return fmt.Errorf("guide %s: response key %q used by sections %d and %d", d.ID, key, prev, i)
			}
			seen[key] = i
		}
	}
	return nil
}
