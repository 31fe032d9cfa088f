package sync

import (
	"regexp"
	"strings"
)

// emailPattern accepts a local part, an @, and either a dotted domain with
// an alphabetic TLD or a bracketed IPv4 literal.
var emailPattern = regexp.MustCompile(`^[^<>()\[\]\\.,;:\s@"]+(\.[^<>()\[\]\\.,;:\s@"]+)*@((\[[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\])|(([a-zA-Z\-0-9]+\.)+[a-zA-Z]{2,}))$`)

// IsValidEmail reports whether s looks like an email address.
func IsValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// ExtractEmail returns the first valid email address found on an event,
// probing the distinct id first, then the person-level "email" property,
// then the event-level one.
func ExtractEmail(event InboundEvent) (string, bool) {
	candidates := []string{event.DistinctID}
	if v, ok := event.SetProperties["email"].(string); ok {
		candidates = append(candidates, v)
	}
	if v, ok := event.EventProperties["email"].(string); ok {
		candidates = append(candidates, v)
	}
	for _, candidate := range candidates {
		if IsValidEmail(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// IsIgnoredDomain reports whether the domain part of email matches one of
// the ignored domains by suffix, so "mycompany.com" also covers
// "mail.mycompany.com".
func IsIgnoredDomain(email string, ignored []string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, d := range ignored {
		if strings.HasSuffix(domain, strings.ToLower(d)) {
			return true
		}
	}
	return false
}
