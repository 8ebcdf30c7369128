package mailfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mikey/inbox-assistant/internal/core"
	"github.com/mikey/inbox-assistant/internal/senderfilter"
	"go.uber.org/zap"
)

// DirFetcher is an implementation of core.EmailFetcher over a directory of .eml
// files. Each user reads the subdirectory named after their id when it exists,
// and the directory itself otherwise. The file name without extension is the email id.
type DirFetcher struct {
	dir    string
	filter *senderfilter.Filter
	logger *zap.Logger
}

// NewDirFetcher creates a fetcher over dir
func NewDirFetcher(dir string, filter *senderfilter.Filter, logger *zap.Logger) *DirFetcher {
	return &DirFetcher{
		dir:    dir,
		filter: filter,
		logger: logger,
	}
}

// FetchEmails returns up to maxResults messages dated within the range, newest first
func (f *DirFetcher) FetchEmails(ctx context.Context, auth core.AuthContext, dateRange core.DateRange, maxResults int) ([]core.Email, error) {
	dir := f.dir
	if auth.UserID != "" {
		userDir := filepath.Join(f.dir, auth.UserID)
		if info, err := os.Stat(userDir); err == nil && info.IsDir() {
			dir = userDir
		}
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.eml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list message files: %w", err)
	}

	emails := make([]core.Email, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		email, err := f.readFile(path)
		if err != nil {
			return nil, err
		}
		if !inRange(email, dateRange) || f.filter.IsIgnored(email.From) {
			continue
		}
		emails = append(emails, email)
	}

	sort.SliceStable(emails, func(i, j int) bool {
		return emails[i].Date.After(emails[j].Date)
	})
	if maxResults > 0 && len(emails) > maxResults {
		emails = emails[:maxResults]
	}

	f.logger.Debug("Read message files",
		zap.String("dir", dir),
		zap.Int("files", len(paths)),
		zap.Int("kept", len(emails)))

	return emails, nil
}

func (f *DirFetcher) readFile(path string) (core.Email, error) {
	file, err := os.Open(path)
	if err != nil {
		return core.Email{}, fmt.Errorf("failed to open message file: %w", err)
	}
	defer file.Close()

	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	email, err := ParseMessage(file, id)
	if err != nil {
		return core.Email{}, fmt.Errorf("%s: %w", path, err)
	}
	return email, nil
}

func inRange(email core.Email, r core.DateRange) bool {
	if email.Date.IsZero() {
		return true
	}
	if !r.From.IsZero() && email.Date.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !email.Date.Before(r.To) {
		return false
	}
	return true
}
