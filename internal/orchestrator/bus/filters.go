package bus

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Filter inspects or rejects a message before it is queued. Returning
// ok=false drops the message (logged by the caller); a filter may also
// return a modified message (the security filter redacts in place).
type Filter interface {
	Apply(m Message) (out Message, ok bool)
}

// ContentFilter drops messages whose string payload values contain a
// blocked substring. It does not modify messages.
type ContentFilter struct {
	Blocked []string
}

func (f ContentFilter) Apply(m Message) (Message, bool) {
	for _, blocked := range f.Blocked {
		for _, v := range m.Payload {
			if s, ok := v.(string); ok && strings.Contains(s, blocked) {
				return m, false
			}
		}
	}
	return m, true
}

// SizeFilter rejects messages whose encoded payload exceeds MaxBytes.
type SizeFilter struct {
	MaxBytes int
}

func (f SizeFilter) Apply(m Message) (Message, bool) {
	size := 0
	for k, v := range m.Payload {
		size += len(k) + len(fmt.Sprintf("%v", v))
	}
	return m, size <= f.MaxBytes
}

// FrequencyFilter rate-limits messages per sender per minute.
type FrequencyFilter struct {
	MaxPerMinute int

	mu      sync.Mutex
	seen    map[string][]time.Time
	nowFunc func() time.Time
}

// NewFrequencyFilter builds a filter allowing maxPerMinute messages per
// sender in any rolling 60-second window.
func NewFrequencyFilter(maxPerMinute int) *FrequencyFilter {
	return &FrequencyFilter{MaxPerMinute: maxPerMinute, seen: make(map[string][]time.Time), nowFunc: time.Now}
}

func (f *FrequencyFilter) Apply(m Message) (Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.nowFunc()
	cutoff := now.Add(-time.Minute)
	recent := f.seen[m.From][:0]
	for _, t := range f.seen[m.From] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) >= f.MaxPerMinute {
		f.seen[m.From] = recent
		return m, false
	}
	f.seen[m.From] = append(recent, now)
	return m, true
}

var securityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`),        // credit card
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), // email
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),                          // SSN
}

// SecurityFilter redacts credit-card, email, and SSN-shaped substrings
// from string payload values rather than dropping the message outright.
type SecurityFilter struct{}

func (SecurityFilter) Apply(m Message) (Message, bool) {
	redacted := make(map[string]interface{}, len(m.Payload))
	for k, v := range m.Payload {
		if s, ok := v.(string); ok {
			for _, p := range securityPatterns {
				s = p.ReplaceAllString(s, "[REDACTED]")
			}
			redacted[k] = s
			continue
		}
		redacted[k] = v
	}
	m.Payload = redacted
	return m, true
}
