package auth

import "strings"

// Allowlist gates credit-consuming endpoints by email domain. Exact domains
// match the part after "@"; patterns match any subdomain suffix, so
// "uni.edu" in Patterns admits "mail.uni.edu" addresses too. Empty lists
// admit everyone.
type Allowlist struct {
	Domains  []string
	Patterns []string
}

func (a Allowlist) Allowed(email string) bool {
	if len(a.Domains) == 0 && len(a.Patterns) == 0 {
		return true
	}
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return false
	}
	domain := strings.ToLower(email[at+1:])

	for _, d := range a.Domains {
		if domain == strings.ToLower(strings.TrimSpace(d)) {
			return true
		}
	}
	for _, p := range a.Patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if domain == p || strings.HasSuffix(domain, "."+p) {
			return true
		}
	}
	return false
}
