package schema

import (
	"encoding/json"
	"slices"
)

// SectionSet is a sorted set of unlocked section indices.
type SectionSet []int

// NewSectionSet returns the set of the given indices. Negative indices are
// dropped.
func NewSectionSet(indices ...int) SectionSet {
	var s SectionSet
	for _, i := range indices {
		s = s.Add(i)
	}
	return s
}

// Has reports whether i is in the set.
func (s SectionSet) Has(i int) bool {
	_, found := slices.BinarySearch(s, i)
	return found
}

// Add returns the set with i included.
func (s SectionSet) Add(i int) SectionSet {
	if i < 0 {
		return s
	}
	pos, found := slices.BinarySearch(s, i)
	if found {
		return s
	}
	return slices.Insert(slices.Clone(s), pos, i)
}

// Union returns the set of indices in s or o.
func (s SectionSet) Union(o SectionSet) SectionSet {
	out := slices.Clone(s)
	for _, i := range o {
		out = out.Add(i)
	}
	return out
}

// Contains reports whether every index of o is in s.
func (s SectionSet) Contains(o SectionSet) bool {
	for _, i := range o {
		if !s.Has(i) {
			return false
		}
	}
	return true
}

// Max returns the highest unlocked index, or -1 for an empty set.
func (s SectionSet) Max() int {
	if len(s) == 0 {
		return -1
	}
	return s[len(s)-1]
}

// UnmarshalJSON accepts any integer array and normalizes order and
// duplicates.
func (s *SectionSet) UnmarshalJSON(data []byte) error {
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = NewSectionSet(raw...)
	return nil
}

// MarshalJSON always writes an array, never null.
func (s SectionSet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]int(s))
}

// GuideProgress is the stored progress through one guide. The JSON shape
// matches the browser's guide_<id>_responses entry.
type GuideProgress struct {
	Responses        map[string]string `json:"responses"`
	UnlockedSections SectionSet        `json:"unlockedSections"`
}

// NewGuideProgress returns the initial progress: no answers, section 0
// unlocked.
func NewGuideProgress() GuideProgress {
	return GuideProgress{
		Responses:        map[string]string{},
		UnlockedSections: SectionSet{0},
	}
}

// Clone returns a deep copy.
func (g GuideProgress) Clone() GuideProgress {
	out := GuideProgress{
		Responses:        make(map[string]string, len(g.Responses)),
		UnlockedSections: slices.Clone(g.UnlockedSections),
	}
	for k, v := range g.Responses {
		out.Responses[k] = v
	}
	return out
}
