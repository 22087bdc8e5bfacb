package curriculum

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestDefault tests the embedded curriculum
func TestDefault(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default() failed: %v", err)
	}

	var ids []string
	for _, cat := range c.Categories() {
		ids = append(ids, cat.ID)
	}
	if diff := cmp.Diff([]string{"day1", "week1", "week2"}, ids); diff != "" {
		t.Errorf("category ids mismatch (-want +got):\n%s", diff)
	}
	if got := len(c.TaskIDs()); got != 20 {
		t.Errorf("len(TaskIDs()) = %d, want 20", got)
	}

	task, ok := c.Task("d1-1")
	if !ok {
		t.Fatal("Task(d1-1) not found")
	}
	if task.Guide != "define-your-niche" {
		t.Errorf("d1-1 guide = %q, want define-your-niche", task.Guide)
	}
	if _, ok := c.Task("zz-9"); ok {
		t.Error("Task(zz-9) found")
	}
}

// TestDefault_GuideStructure tests the exercise layout of the embedded guides
func TestDefault_GuideStructure(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default() failed: %v", err)
	}

	tests := []struct {
		guide     string
		sections  int
		exercises []int
	}{
		{"define-your-niche", 11, []int{2, 3, 4, 5, 6, 7, 9, 10}},
		{"brainstorm-blog-names", 8, []int{1, 2, 3, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.guide, func(t *testing.T) {
			g, ok := c.Guide(tt.guide)
			if !ok {
				t.Fatalf("Guide(%s) not found", tt.guide)
			}
			if len(g.Sections) != tt.sections {
				t.Errorf("len(Sections) = %d, want %d", len(g.Sections), tt.sections)
			}
			var got []int
			for i, s := range g.Sections {
				if s.Exercise != nil {
					got = append(got, i)
				}
			}
			if diff := cmp.Diff(tt.exercises, got); diff != "" {
				t.Errorf("exercise sections mismatch (-want +got):\n%s", diff)
			}
		})
	}

	niche, _ := c.Guide("define-your-niche")
	for _, f := range niche.Sections[7].Exercise.Fields {
		wantOptional := f.ID == "statement-4" || f.ID == "statement-5"
		if f.Optional != wantOptional {
			t.Errorf("field %s optional = %v, want %v", f.ID, f.Optional, wantOptional)
		}
	}

	var labels []string
	for _, f := range niche.Sections[4].Exercise.Fields {
		labels = append(labels, f.Label)
	}
	wantLabels := []string{
		"What were you struggling with before you learned what you know now?",
		"What changed everything for you?",
		"What result did you achieve that others want?",
	}
	if diff := cmp.Diff(wantLabels, labels); diff != "" {
		t.Errorf("origin story labels mismatch (-want +got):\n%s", diff)
	}
}

// TestParse_Invalid tests validation of curriculum files
func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no categories",
			yaml: "categories: []\n",
			want: "at least one category",
		},
		{
			name: "duplicate task",
			yaml: `
categories:
  - id: a
    tasks: [{id: t1, text: one}]
  - id: b
    tasks: [{id: t1, text: again}]
`,
			want: "duplicate task id",
		},
		{
			name: "unknown guide link",
			yaml: `
categories:
  - id: a
    tasks: [{id: t1, text: one, guide: missing}]
`,
			want: "unknown guide",
		},
		{
			name: "duplicate field",
			yaml: `
categories:
  - id: a
    tasks: [{id: t1, text: one}]
guides:
  - id: g
    title: G
    sections:
      - title: A
        exercise: {id: a, fields: [{id: x}]}
      - title: B
        exercise: {id: b, fields: [{id: x}]}
`,
			want: "response key",
		},
		{
			name: "malformed",
			yaml: "categories: [",
			want: "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}
