// Package stats derives completion figures from task notes. Everything here
// is computed on demand from the current notes; nothing is cached.
package stats

import (
	"github.com/blogpad/launchpad/internal/curriculum"
	"github.com/blogpad/launchpad/internal/progress/schema"
)

// Percent returns 100*completed/total rounded half up, or 0 for an empty
// total.
func Percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*completed + total) / (2 * total)
}

// CategoryProgress is the completion of one category.
type CategoryProgress struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Percent   int    `json:"percent"`
}

// Overview is the completion of the whole curriculum.
type Overview struct {
	Categories []CategoryProgress `json:"categories"`
	Completed  int                `json:"completed"`
	Total      int                `json:"total"`
	Percent    int                `json:"percent"`
}

// Category computes the progress of cat. Notes for tasks outside the
// category are ignored.
func Category(cat curriculum.Category, notes schema.NoteSet) CategoryProgress {
	done := notes.CompletedCount(cat.TaskIDs())
	return CategoryProgress{
		ID:        cat.ID,
		Title:     cat.Title,
		Completed: done,
		Total:     len(cat.Tasks),
		Percent:   Percent(done, len(cat.Tasks)),
	}
}

// Compute returns the progress of every category of c.
func Compute(c *curriculum.Catalog, notes schema.NoteSet) Overview {
	var o Overview
	for _, cat := range c.Categories() {
		p := Category(cat, notes)
		o.Categories = append(o.Categories, p)
		o.Completed += p.Completed
		o.Total += p.Total
	}
	o.Percent = Percent(o.Completed, o.Total)
	return o
}
