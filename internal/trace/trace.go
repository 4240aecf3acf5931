// Package trace accumulates the prompts and search results produced during
// one enrichment run. The trace is a side channel for the persistence
// collaborator's log document; losing entries past the cap is acceptable,
// losing the run is not.
package trace

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Category buckets trace entries; each category keeps a fixed number of
// slots so the downstream log document stays bounded.
type Category string

const (
	CategoryPrompt      Category = "prompt"
	CategorySearch      Category = "search"
	CategoryAcquisition Category = "acquisition"
)

// slotsPerCategory mirrors the fixed column budget of the log document.
const slotsPerCategory = 5

// Entry is one prompt/response or query/result pair.
type Entry struct {
	Stage    string
	Request  string
	Response string
	At       time.Time
}

// Trace is written exclusively by the run that owns it.
type Trace struct {
	RunID   string
	Started time.Time
	entries map[Category][]Entry
	dropped map[Category]int
}

func New() *Trace {
	return &Trace{
		RunID:   uuid.NewString(),
		Started: time.Now(),
		entries: make(map[Category][]Entry),
		dropped: make(map[Category]int),
	}
}

// Add records an entry, dropping it if the category is full.
func (t *Trace) Add(cat Category, stage, request, response string) {
	if t == nil {
		return
	}
	if len(t.entries[cat]) >= slotsPerCategory {
		t.dropped[cat]++
		return
	}
	t.entries[cat] = append(t.entries[cat], Entry{
		Stage:    stage,
		Request:  request,
		Response: response,
		At:       time.Now(),
	})
}

// Entries returns the recorded entries for a category, in insertion order.
func (t *Trace) Entries(cat Category) []Entry {
	if t == nil {
		return nil
	}
	out := make([]Entry, len(t.entries[cat]))
	copy(out, t.entries[cat])
	return out
}

// Dropped reports how many entries did not fit in a category's slots.
func (t *Trace) Dropped(cat Category) int {
	if t == nil {
		return 0
	}
	return t.dropped[cat]
}

// Summary is a one-line description for run logs.
func (t *Trace) Summary() string {
	if t == nil {
		return ""
	}
	return fmt.Sprintf("run=%s prompts=%d searches=%d acquisitions=%d",
		t.RunID,
		len(t.entries[CategoryPrompt]),
		len(t.entries[CategorySearch]),
		len(t.entries[CategoryAcquisition]))
}
