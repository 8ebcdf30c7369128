package extraction

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/mikey/inbox-assistant/internal/core"
)

var twoEmails = []core.Email{{ID: "m1"}, {ID: "m2"}}

func TestParseResponse(t *testing.T) {
	text := `{
		"events": [
			{"title": " Swimming gala ", "start": "2026-05-03T09:30", "end": "2026-05-03T11:00", "child_name": "Ava", "confidence": 1.7, "source_email_id": "m1"},
			{"title": "Sports day", "start": "2026-05-04T08:00:00Z", "end": "2026-05-04T07:00:00Z", "confidence": -2, "source_email_id": "m2"},
			{"title": "", "start": "2026-05-05", "source_email_id": "m1"},
			{"title": "No date", "start": "next Tuesday", "source_email_id": "m1"},
			{"title": "Orphan", "start": "2026-05-05", "source_email_id": "m9"}
		],
		"todos": [
			{"description": "Pay for the trip", "type": "Payment", "due_date": "2026-05-01", "source_email_id": "m1"},
			{"description": "Bring a costume", "type": "chore", "due_date": null, "source_email_id": "m2"},
			{"description": "  ", "type": "form", "source_email_id": "m2"}
		]
	}`

	london, _ := time.LoadLocation("Europe/London")
	got, err := ParseResponse(text, twoEmails, core.ExtractOptions{Timezone: "Europe/London"})
	if err != nil {
		t.Fatal(err)
	}

	if len(got.Events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(got.Events), got.Events)
	}
	gala := got.Events[0]
	if gala.Title != "Swimming gala" || gala.ChildName != "Ava" || gala.SourceEmailID != "m1" {
		t.Errorf("unexpected event %+v", gala)
	}
	if want := time.Date(2026, 5, 3, 9, 30, 0, 0, london); !gala.Start.Equal(want) {
		t.Errorf("start = %v, want %v", gala.Start, want)
	}
	if gala.End == nil || !gala.End.Equal(time.Date(2026, 5, 3, 11, 0, 0, 0, london)) {
		t.Errorf("end = %v", gala.End)
	}
	if gala.Confidence != 1 {
		t.Errorf("confidence not clamped: %v", gala.Confidence)
	}

	sports := got.Events[1]
	if !sports.Start.Equal(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("RFC3339 start = %v", sports.Start)
	}
	if sports.End != nil {
		t.Error("end before start should be dropped")
	}
	if sports.Confidence != 0 {
		t.Errorf("confidence not clamped: %v", sports.Confidence)
	}
	if orphan := got.Events[2]; orphan.Title != "Orphan" || orphan.SourceEmailID != "" {
		t.Errorf("unexpected event %+v", orphan)
	}

	if len(got.Todos) != 2 {
		t.Fatalf("expected 2 todos, got %d", len(got.Todos))
	}
	if got.Todos[0].Type != "payment" || got.Todos[0].DueDate == nil {
		t.Errorf("unexpected todo %+v", got.Todos[0])
	}
	if got.Todos[1].Type != "other" || got.Todos[1].DueDate != nil {
		t.Errorf("unexpected todo %+v", got.Todos[1])
	}
}

func TestParseResponseKeepsUnattributedItems(t *testing.T) {
	text := `{"events":[{"title":"Parents evening","start":"2026-05-07T18:00","source_email_id":"msg-3"}],"todos":[{"description":"Sign the consent form","type":"form"}]}`
	got, err := ParseResponse(text, twoEmails, core.ExtractOptions{Timezone: "UTC"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Events) != 1 || got.Events[0].Title != "Parents evening" || got.Events[0].SourceEmailID != "" {
		t.Errorf("unexpected events %+v", got.Events)
	}
	if len(got.Todos) != 1 || got.Todos[0].Description != "Sign the consent form" || got.Todos[0].SourceEmailID != "" {
		t.Errorf("unexpected todos %+v", got.Todos)
	}
}

func TestParseResponseSingleEmailAttribution(t *testing.T) {
	text := `{"events":[{"title":"Trip","start":"2026-05-03","source_email_id":"email-1"}],"todos":[{"description":"Reply","type":"reply"}]}`
	got, err := ParseResponse(text, []core.Email{{ID: "18f2a"}}, core.ExtractOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Events) != 1 || got.Events[0].SourceEmailID != "18f2a" {
		t.Errorf("event not attributed to the only email: %+v", got.Events)
	}
	if len(got.Todos) != 1 || got.Todos[0].SourceEmailID != "18f2a" {
		t.Errorf("todo not attributed to the only email: %+v", got.Todos)
	}
	if !got.Events[0].Start.Equal(time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date-only start should be midnight UTC, got %v", got.Events[0].Start)
	}
}

func TestParseResponseWrappedJSON(t *testing.T) {
	text := "Here is what I found:\n```json\n{\"events\": [{\"title\": \"Concert\", \"start\": \"2026-06-01 18:00\", \"source_email_id\": \"m2\"}]}\n```"
	got, err := ParseResponse(text, twoEmails, core.ExtractOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Events) != 1 || got.Events[0].Title != "Concert" {
		t.Errorf("unexpected events %+v", got.Events)
	}
	if got.Todos == nil {
		t.Error("todos should be an empty slice, not nil")
	}
}

func TestParseResponseErrors(t *testing.T) {
	if _, err := ParseResponse("I could not find anything.", twoEmails, core.ExtractOptions{}); !errors.Is(err, ErrNoJSON) {
		t.Errorf("expected ErrNoJSON, got %v", err)
	}
	_, err := ParseResponse("{events: nope}", twoEmails, core.ExtractOptions{})
	if err == nil || errors.Is(err, ErrNoJSON) {
		t.Errorf("expected a decode error, got %v", err)
	}
}

func TestParseResponseEmpty(t *testing.T) {
	got, err := ParseResponse(`{}`, twoEmails, core.ExtractOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Events == nil || got.Todos == nil || len(got.Events)+len(got.Todos) != 0 {
		t.Errorf("expected empty non-nil slices, got %+v", got)
	}
}
