package catalog

import (
	"strings"
	"time"
)

// EntityType names one independently reconciled slice of the catalog.
type EntityType string

const (
	EntityCategory EntityType = "category"
	EntityTask     EntityType = "task"
)

// Item is one row of a catalog snapshot. Key returns the external-stable
// identifier the feed uses; it is unique among active items of one entity type.
type Item interface {
	Key() int64
	Validate() error
}

// Category is a volunteering category from the partner feed. Archived rows are
// kept forever; a later snapshot that re-includes the id revives them.
type Category struct {
	ID       int64
	Name     string
	ParentID *int64
	Archived bool
}

func (c Category) Key() int64 { return c.ID }

func (c Category) Validate() error {
	if c.ID < 1 {
		return &ValidationError{Entity: EntityCategory, ID: c.ID, Reason: "id must be >= 1"}
	}
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Entity: EntityCategory, ID: c.ID, Reason: "name is required"}
	}
	return nil
}

// Task is a volunteering task from the partner feed.
type Task struct {
	ID               int64
	Title            string
	NameOrganization string
	CategoryID       *int64
	Deadline         *time.Time
	Bonus            int
	Location         string
	Link             string
	Description      string
	Archived         bool
}

func (t Task) Key() int64 { return t.ID }

func (t Task) Validate() error {
	if t.ID < 1 {
		return &ValidationError{Entity: EntityTask, ID: t.ID, Reason: "id must be >= 1"}
	}
	if strings.TrimSpace(t.Title) == "" {
		return &ValidationError{Entity: EntityTask, ID: t.ID, Reason: "title is required"}
	}
	if t.Bonus < 0 {
		return &ValidationError{Entity: EntityTask, ID: t.ID, Reason: "bonus must be >= 0"}
	}
	return nil
}
