// Package extraction holds the prompt and response format shared by the
// LLM-backed extractors.
package extraction

import (
	"fmt"
	"strings"
	"time"

	"github.com/mikey/inbox-assistant/internal/core"
	"github.com/mikey/inbox-assistant/internal/utils"
)

// SystemPrompt is sent as the system message by providers that support one
const SystemPrompt = "You extract calendar events and action items from family email. Respond only with JSON."

const promptHeader = `Read the emails below and list every calendar event and every action item they contain.
Today is %s and the reader's timezone is %s.

Respond with a JSON object of the form:
{
  "events": [
    {
      "title": string,
      "start": string (ISO 8601 date-time in the reader's timezone, or YYYY-MM-DD for all-day),
      "end": string or null,
      "description": string,
      "location": string,
      "child_name": string (the child the event concerns, empty if none),
      "confidence": number between 0 and 1,
      "source_email_id": string (the id of the email the event came from)
    }
  ],
  "todos": [
    {
      "description": string,
      "type": string (one of: payment, form, purchase, reply, other),
      "due_date": string or null,
      "source_email_id": string
    }
  ]
}
Return empty arrays when nothing applies. Respond only with the JSON object and nothing else.
`

// BuildPrompt renders the batch into a single extraction prompt. Bodies are
// flattened and truncated to maxBodySize bytes each.
func BuildPrompt(emails []core.Email, opts core.ExtractOptions, tp *utils.TextProcessor, maxBodySize int) string {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	tz := opts.Timezone
	if tz == "" {
		tz = "UTC"
	}

	var b strings.Builder
	fmt.Fprintf(&b, promptHeader, now.In(location(tz)).Format("Monday 2 January 2006 15:04"), tz)

	for i, email := range emails {
		fmt.Fprintf(&b, "\n--- Email %d ---\n", i+1)
		fmt.Fprintf(&b, "ID: %s\n", email.ID)
		fmt.Fprintf(&b, "From: %s\n", email.From)
		fmt.Fprintf(&b, "Subject: %s\n", email.Subject)
		if !email.Date.IsZero() {
			fmt.Fprintf(&b, "Date: %s\n", email.Date.Format(time.RFC1123Z))
		}
		if len(email.Attachments) > 0 {
			names := make([]string, 0, len(email.Attachments))
			for _, a := range email.Attachments {
				names = append(names, a.Filename)
			}
			fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(names, ", "))
		}
		b.WriteString("Body:\n")
		b.WriteString(tp.ProcessText(email.Body, maxBodySize))
		b.WriteString("\n")
	}

	return b.String()
}

func location(tz string) *time.Location {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
