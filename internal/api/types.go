package api

import (
	"fmt"
	"time"

	"charitybot/internal/catalog"
	"charitybot/internal/dispatch"
)

// deadlineFormat matches the partner feed's day-first dates ("31.12.2025").
const deadlineFormat = "02.01.2006"

type categoryIn struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

func (in categoryIn) toDomain() catalog.Category {
	return catalog.Category{ID: in.ID, Name: in.Name, ParentID: in.ParentID}
}

type taskIn struct {
	ID               int64  `json:"id"`
	Title            string `json:"title"`
	NameOrganization string `json:"name_organization,omitempty"`
	CategoryID       *int64 `json:"category_id,omitempty"`
	Deadline         string `json:"deadline,omitempty"`
	Bonus            int    `json:"bonus,omitempty"`
	Location         string `json:"location,omitempty"`
	Link             string `json:"link,omitempty"`
	Description      string `json:"description,omitempty"`
}

func (in taskIn) toDomain() (catalog.Task, error) {
	t := catalog.Task{
		ID:               in.ID,
		Title:            in.Title,
		NameOrganization: in.NameOrganization,
		CategoryID:       in.CategoryID,
		Bonus:            in.Bonus,
		Location:         in.Location,
		Link:             in.Link,
		Description:      in.Description,
	}
	if in.Deadline != "" {
		d, err := time.Parse(deadlineFormat, in.Deadline)
		if err != nil {
			return catalog.Task{}, fmt.Errorf("task %d: invalid deadline %q (want DD.MM.YYYY)", in.ID, in.Deadline)
		}
		t.Deadline = &d
	}
	return t, nil
}

type broadcastIn struct {
	Message string `json:"message"`
	Mode    string `json:"mode"`
}

type messageIn struct {
	RecipientID int64  `json:"recipient_id"`
	Message     string `json:"message"`
}

type groupIn struct {
	Messages []messageIn `json:"messages"`
}

type singleIn struct {
	Message string `json:"message"`
}

type sendError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// infoRate is the aggregate dispatch response.
type infoRate struct {
	SuccessfulRate   int         `json:"successful_rate"`
	UnsuccessfulRate int         `json:"unsuccessful_rate"`
	Messages         []string    `json:"messages"`
	Errors           []sendError `json:"errors"`
	Partial          bool        `json:"partial,omitempty"`
}

func toInfoRate(rep *dispatch.Report) infoRate {
	out := infoRate{
		SuccessfulRate:   rep.Successful,
		UnsuccessfulRate: rep.Unsuccessful,
		Messages:         rep.Messages,
		Errors:           make([]sendError, 0, len(rep.Errors)),
		Partial:          rep.Partial,
	}
	if out.Messages == nil {
		out.Messages = []string{}
	}
	for _, e := range rep.Errors {
		out.Errors = append(out.Errors, sendError{Type: string(e.Kind), Message: e.Detail})
	}
	return out
}
