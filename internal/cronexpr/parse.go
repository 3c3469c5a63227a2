package cronexpr

import (
	"fmt"
	"strings"
	"time"
)

// ParseExpression turns a schedule string from a config file into an Expression.
//
// Supported forms:
//   - Cron: "*/5 * * * *", "*/10 * * * * *", "@hourly", "@every 55m"
//   - Instant: "2026-01-02T15:04:05Z" (RFC 3339)
//
// Optional prefixes:
//   - "cron:" forces cron parsing
//   - "at:" forces instant parsing
//
// The result still has to go through Validate.
func ParseExpression(raw string) (Expression, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Expression{}, &Error{Expression: raw, Message: "schedule required"}
	}

	low := strings.ToLower(s)
	if strings.HasPrefix(low, "cron:") {
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return Expression{}, &Error{Expression: raw, Message: "cron pattern required after 'cron:'"}
		}
		return Cron(expr), nil
	}
	if strings.HasPrefix(low, "at:") {
		v := strings.TrimSpace(s[len("at:"):])
		t, err := parseInstant(v)
		if err != nil {
			return Expression{}, &Error{Expression: raw, Message: err.Error(), Err: err}
		}
		return At(t), nil
	}

	// Heuristics:
	// - any whitespace or leading '@' => cron
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return Cron(s), nil
	}
	// - RFC 3339 => instant
	if t, err := parseInstant(s); err == nil {
		return At(t), nil
	}

	return Expression{}, &Error{
		Expression: raw,
		Message:    "use a cron pattern like '*/5 * * * *' or an RFC 3339 instant like '2026-01-02T15:04:05Z'",
	}
}

func parseInstant(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("instant required")
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid instant %q: %w", v, err)
	}
	return t, nil
}
