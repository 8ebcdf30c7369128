package core

import (
	"time"
)

// SyncStatus is the delivery state of a stored event relative to the external calendar
type SyncStatus string

const (
	SyncStatusPending    SyncStatus = "pending"
	SyncStatusInProgress SyncStatus = "in_progress"
	SyncStatusSynced     SyncStatus = "synced"
	SyncStatusFailed     SyncStatus = "failed"
)

// TodoStatus is the completion state of a stored todo
type TodoStatus string

const (
	TodoStatusPending TodoStatus = "pending"
	TodoStatusDone    TodoStatus = "done"
)

// Attachment describes an email attachment without its content
type Attachment struct {
	Filename string
	MimeType string
}

// Email represents a fetched email message
type Email struct {
	ID          string
	From        string
	Subject     string
	Date        time.Time
	Body        string
	Attachments []Attachment
}

// DateRange bounds the emails fetched for a run. A zero bound is open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// OAuthToken carries the credentials needed to call the user's mail and calendar APIs
type OAuthToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
}

// AuthContext identifies the user and carries what the external collaborators need
type AuthContext struct {
	UserID     string
	Email      string
	CalendarID string
	Timezone   string
	Token      OAuthToken
}

// Location resolves the user's timezone, falling back to UTC
func (a AuthContext) Location() *time.Location {
	if a.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// User is an account known to the pipeline
type User struct {
	ID                      string     `json:"id"`
	Email                   string     `json:"email"`
	Timezone                string     `json:"timezone"`
	CalendarID              string     `json:"calendar_id"`
	CalendarDeliveryEnabled bool       `json:"calendar_delivery_enabled"`
	Token                   OAuthToken `json:"token"`
}

// AuthContext builds the collaborator context for this user
func (u *User) AuthContext() AuthContext {
	return AuthContext{
		UserID:     u.ID,
		Email:      u.Email,
		CalendarID: u.CalendarID,
		Timezone:   u.Timezone,
		Token:      u.Token,
	}
}

// ExtractedEvent is a calendar event derived by an extractor. It is never stored directly.
type ExtractedEvent struct {
	Title         string
	Start         time.Time
	End           *time.Time
	Description   string
	Location      string
	ChildName     string
	Confidence    float64
	SourceEmailID string
}

// ExtractedTodo is an action item derived by an extractor
type ExtractedTodo struct {
	Description   string
	Type          string
	DueDate       *time.Time
	SourceEmailID string
}

// Extraction is the result of one extractor call over a batch of emails
type Extraction struct {
	Events []ExtractedEvent
	Todos  []ExtractedTodo
}

// ExtractOptions gives the extractor the context it needs to resolve relative dates
type ExtractOptions struct {
	Timezone string
	Now      time.Time
}

// StoredEvent is a persisted event together with its delivery state
type StoredEvent struct {
	ID                 string
	UserID             string
	Title              string
	Start              time.Time
	End                *time.Time
	Description        string
	Location           string
	ChildName          string
	Confidence         float64
	SourceEmailID      string
	SyncStatus         SyncStatus
	RetryCount         int
	ExternalCalendarID string
	SyncError          string
	ClaimedAt          *time.Time
	LastAttemptAt      *time.Time
	CreatedAt          time.Time
}

// StoredTodo is a persisted action item
type StoredTodo struct {
	ID            string
	UserID        string
	Description   string
	Type          string
	DueDate       *time.Time
	Status        TodoStatus
	SourceEmailID string
	CreatedAt     time.Time
}

// ExistingEvent is an event already present in the external calendar
type ExistingEvent struct {
	ID    string
	Title string
	Start time.Time
}

// TimeWindow is a closed time interval used to list calendar events
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// ProcessOptions controls a single pipeline run
type ProcessOptions struct {
	DateRange  DateRange
	MaxResults int
	AIProvider string
}

// ProcessingResult summarizes a pipeline run
type ProcessingResult struct {
	RunID            string   `json:"run_id"`
	Success          bool     `json:"success"`
	EmailsFetched    int      `json:"emails_fetched"`
	EmailsProcessed  int      `json:"emails_processed"`
	EmailsSkipped    int      `json:"emails_skipped"`
	EventsCreated    int      `json:"events_created"`
	TodosCreated     int      `json:"todos_created"`
	EventsSynced     int      `json:"events_synced"`
	EventsFailed     int      `json:"events_failed"`
	EventsRemoved    int      `json:"events_removed"`
	TodosCompleted   int      `json:"todos_completed"`
	Errors           []string `json:"errors"`
	ProcessingTimeMs int64    `json:"processing_time_ms"`
}

// SyncResult summarizes a delivery pass
type SyncResult struct {
	Processed  int `json:"processed"`
	Synced     int `json:"synced"`
	Failed     int `json:"failed"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

// CleanupResult summarizes a sweep
type CleanupResult struct {
	TodosCompleted int      `json:"todos_completed"`
	EventsRemoved  int      `json:"events_removed"`
	EventIDs       []string `json:"event_ids"`
}
