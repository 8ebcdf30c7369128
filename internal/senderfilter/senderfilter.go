package senderfilter

import (
	"net/mail"
	"strings"

	"go.uber.org/zap"
)

// Filter drops mail from senders that never carry schedulable content
type Filter struct {
	domains   []string
	addresses map[string]bool
	logger    *zap.Logger
}

// New creates a filter from a list of entries. An entry containing "@" matches a
// full address; any other entry matches a domain and its subdomains.
func New(entries []string, logger *zap.Logger) *Filter {
	f := &Filter{
		addresses: make(map[string]bool),
		logger:    logger,
	}
	for _, entry := range entries {
		entry = strings.ToLower(strings.TrimSpace(entry))
		switch {
		case entry == "":
		case strings.Contains(entry, "@"):
			f.addresses[entry] = true
		default:
			f.domains = append(f.domains, strings.TrimPrefix(entry, "@"))
		}
	}

	if logger != nil && (len(f.domains) > 0 || len(f.addresses) > 0) {
		logger.Info("Initialized sender filter",
			zap.Strings("domains", f.domains),
			zap.Int("addresses", len(f.addresses)))
	}

	return f
}

// IsIgnored reports whether a From header value matches the ignore list
func (f *Filter) IsIgnored(from string) bool {
	if f == nil || (len(f.domains) == 0 && len(f.addresses) == 0) {
		return false
	}

	address := strings.ToLower(strings.TrimSpace(from))
	if parsed, err := mail.ParseAddress(from); err == nil {
		address = strings.ToLower(parsed.Address)
	}

	if f.addresses[address] {
		f.debug("Sender address is ignored", address)
		return true
	}

	at := strings.LastIndex(address, "@")
	if at < 0 {
		return false
	}
	domain := address[at+1:]
	for _, ignored := range f.domains {
		if domain == ignored || strings.HasSuffix(domain, "."+ignored) {
			f.debug("Sender domain is ignored", address)
			return true
		}
	}

	return false
}

func (f *Filter) debug(msg, address string) {
	if f.logger != nil {
		f.logger.Debug(msg, zap.String("email", address))
	}
}
