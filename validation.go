package main

import (
	"log/slog"
	"regexp"
	"strings"
)

// The guard is a best-effort lexical gate, not a SQL parser. The engine and
// the account's privileges remain the last line of defence.

// AllowedStatementStarts are the only leading tokens a query may have.
var AllowedStatementStarts = []string{"SELECT", "WITH"}

// DefaultDenyKeywords are rejected anywhere in a query as whole words.
var DefaultDenyKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE",
	"TRUNCATE", "GRANT", "REVOKE", "SET",
}

type denyRule struct {
	keyword string
	re      *regexp.Regexp
}

// Guard classifies query text as read-only or not. It is safe for
// concurrent use.
type Guard struct {
	start  *regexp.Regexp
	deny   []denyRule
	logger *slog.Logger
}

// NewGuard builds a guard from the default lists plus any engine-specific
// deny keywords. Duplicates are ignored.
func NewGuard(logger *slog.Logger, extraDeny ...string) *Guard {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	starts := make([]string, len(AllowedStatementStarts))
	for i, s := range AllowedStatementStarts {
		starts[i] = regexp.QuoteMeta(strings.ToUpper(s))
	}

	g := &Guard{
		start:  regexp.MustCompile(`^(?:` + strings.Join(starts, "|") + `)\b`),
		logger: logger,
	}

	seen := make(map[string]bool)
	for _, kw := range append(append([]string{}, DefaultDenyKeywords...), extraDeny...) {
		kw = strings.ToUpper(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		g.deny = append(g.deny, denyRule{
			keyword: kw,
			re:      regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`),
		})
	}
	return g
}

// DenyKeywords returns the effective deny-list in match order.
func (g *Guard) DenyKeywords() []string {
	out := make([]string, len(g.deny))
	for i, r := range g.deny {
		out[i] = r.keyword
	}
	return out
}

// Validate returns nil when query may be executed, or a *RejectionError.
// The allow-list runs first; the deny-list is only consulted for queries
// that pass it.
func (g *Guard) Validate(query string) error {
	normalized := strings.ToUpper(strings.TrimSpace(query))

	if !g.start.MatchString(normalized) {
		return &RejectionError{Kind: RejectNotAllowlistedStart}
	}

	for _, r := range g.deny {
		if r.re.MatchString(normalized) {
			return &RejectionError{Kind: RejectWriteKeyword, Keyword: r.keyword}
		}
	}

	g.logger.Info("query passed read-only validation")
	return nil
}
