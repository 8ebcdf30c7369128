package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mikey/inbox-assistant/internal/core"
)

// ErrNoJSON is returned when a model response carries no JSON object
var ErrNoJSON = errors.New("no JSON object in model response")

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

type response struct {
	Events []eventPayload `json:"events"`
	Todos  []todoPayload  `json:"todos"`
}

type eventPayload struct {
	Title         string  `json:"title"`
	Start         string  `json:"start"`
	End           *string `json:"end"`
	Description   string  `json:"description"`
	Location      string  `json:"location"`
	ChildName     string  `json:"child_name"`
	Confidence    float64 `json:"confidence"`
	SourceEmailID string  `json:"source_email_id"`
}

type todoPayload struct {
	Description   string  `json:"description"`
	Type          string  `json:"type"`
	DueDate       *string `json:"due_date"`
	SourceEmailID string  `json:"source_email_id"`
}

// ParseResponse decodes a model response into an Extraction. Items whose
// source email is not part of the batch are attributed to the only email when
// the batch has one, and kept with an empty source otherwise, since the whole
// batch is marked processed afterwards. Events without a title or a parseable
// start are dropped.
func ParseResponse(text string, emails []core.Email, opts core.ExtractOptions) (*core.Extraction, error) {
	var resp response
	if err := decode(text, &resp); err != nil {
		return nil, err
	}

	loc := location(opts.Timezone)
	known := make(map[string]bool, len(emails))
	for _, e := range emails {
		known[e.ID] = true
	}
	source := func(id string) string {
		id = strings.TrimSpace(id)
		if known[id] {
			return id
		}
		if len(emails) == 1 {
			return emails[0].ID
		}
		return ""
	}

	out := &core.Extraction{
		Events: []core.ExtractedEvent{},
		Todos:  []core.ExtractedTodo{},
	}

	for _, p := range resp.Events {
		title := strings.TrimSpace(p.Title)
		if title == "" {
			continue
		}
		start, ok := parseTime(p.Start, loc)
		if !ok {
			continue
		}
		event := core.ExtractedEvent{
			Title:         title,
			Start:         start,
			Description:   strings.TrimSpace(p.Description),
			Location:      strings.TrimSpace(p.Location),
			ChildName:     strings.TrimSpace(p.ChildName),
			Confidence:    clamp(p.Confidence),
			SourceEmailID: source(p.SourceEmailID),
		}
		if p.End != nil {
			if end, ok := parseTime(*p.End, loc); ok && !end.Before(start) {
				event.End = &end
			}
		}
		out.Events = append(out.Events, event)
	}

	for _, p := range resp.Todos {
		desc := strings.TrimSpace(p.Description)
		if desc == "" {
			continue
		}
		todo := core.ExtractedTodo{
			Description:   desc,
			Type:          normalizeType(p.Type),
			SourceEmailID: source(p.SourceEmailID),
		}
		if p.DueDate != nil {
			if due, ok := parseTime(*p.DueDate, loc); ok {
				todo.DueDate = &due
			}
		}
		out.Todos = append(out.Todos, todo)
	}

	return out, nil
}

// decode unmarshals text, falling back to the outermost {...} span when the
// model wrapped the object in prose or code fences
func decode(text string, v any) error {
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("failed to parse model response as JSON: %w", err)
	}
	return nil
}

func parseTime(value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339 {
			t, err = time.Parse(layout, value)
		} else {
			t, err = time.ParseInLocation(layout, value, loc)
		}
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func clamp(confidence float64) float64 {
	switch {
	case confidence < 0:
		return 0
	case confidence > 1:
		return 1
	}
	return confidence
}

func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	switch t {
	case "payment", "form", "purchase", "reply":
		return t
	}
	return "other"
}
