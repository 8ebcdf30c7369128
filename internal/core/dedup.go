package core

import (
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Deduplicator decides whether a candidate event already exists in the external calendar
type Deduplicator struct {
	logger *zap.Logger
}

// NewDeduplicator creates a new deduplicator
func NewDeduplicator(logger *zap.Logger) *Deduplicator {
	return &Deduplicator{
		logger: logger,
	}
}

// NormalizeTitle reduces a title to a comparison key: accents stripped, case folded,
// punctuation dropped and whitespace collapsed
func NormalizeTitle(title string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, title)
	if err != nil {
		stripped = title
	}
	folded := cases.Fold().String(stripped)

	var b strings.Builder
	space := false
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}

// sameSlot reports whether two instants fall on the same day and hour in loc
func sameSlot(a, b time.Time, loc *time.Location) bool {
	a, b = a.In(loc), b.In(loc)
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd && a.Hour() == b.Hour()
}

// FindDuplicate returns the existing event matching the candidate, if any
func (d *Deduplicator) FindDuplicate(existing []ExistingEvent, candidate *StoredEvent, loc *time.Location) (*ExistingEvent, bool) {
	if loc == nil {
		loc = time.UTC
	}
	key := NormalizeTitle(candidate.Title)
	if key == "" {
		return nil, false
	}
	for i := range existing {
		if !sameSlot(existing[i].Start, candidate.Start, loc) {
			continue
		}
		if NormalizeTitle(existing[i].Title) == key {
			d.logger.Debug("Duplicate calendar event found",
				zap.String("event_id", candidate.ID),
				zap.String("external_id", existing[i].ID),
				zap.String("title", candidate.Title))
			return &existing[i], true
		}
	}
	return nil, false
}

// IsDuplicate reports whether an equivalent event already exists
func (d *Deduplicator) IsDuplicate(existing []ExistingEvent, candidate *StoredEvent, loc *time.Location) bool {
	_, ok := d.FindDuplicate(existing, candidate, loc)
	return ok
}
