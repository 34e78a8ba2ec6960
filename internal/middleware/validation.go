package middleware

import (
	"errors"
	"net"
	"strings"
)

// ValidateDomain checks that domain is a bare host name, optionally with a
// port, suitable for building a portal URL.
func ValidateDomain(domain string) error {
	if domain == "" {
		return errors.New("DOMAIN is required")
	}
	if len(domain) > 253 {
		return errors.New("DOMAIN exceeds maximum length")
	}
	if strings.ContainsAny(domain, "/?#@\\ \t") {
		return errors.New("DOMAIN must be a host name")
	}
	host := domain
	if h, _, err := net.SplitHostPort(domain); err == nil {
		host = h
	}
	if host == "" {
		return errors.New("DOMAIN must be a host name")
	}
	return nil
}

// ValidateBotID checks a numeric platform bot id.
func ValidateBotID(id string) error {
	if id == "" {
		return errors.New("bot id cannot be empty")
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return errors.New("bot id must be numeric")
		}
	}
	return nil
}
