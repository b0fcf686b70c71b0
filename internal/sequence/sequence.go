// Package sequence hands out human-facing ticket numbers of the form PREFIX-n.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// CounterStore is a persisted counter whose increments are never rolled back.
type CounterStore interface {
	IncrementAndGet(ctx context.Context) (int64, error)
}

var prefixPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// ErrInvalidPrefix is returned for prefixes that are empty or not alphanumeric.
var ErrInvalidPrefix = errors.New("ticket prefix must be alphanumeric")

// Generator formats counter values as ticket numbers.
type Generator struct {
	counter CounterStore
	prefix  string
	tag     *regexp.Regexp
}

// NewGenerator validates prefix and binds it to counter.
func NewGenerator(counter CounterStore, prefix string) (*Generator, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return nil, err
	}
	return &Generator{
		counter: counter,
		prefix:  prefix,
		tag:     TagPattern(prefix),
	}, nil
}

// ValidatePrefix reports whether prefix can be used in ticket numbers.
func ValidatePrefix(prefix string) error {
	if !prefixPattern.MatchString(prefix) {
		return fmt.Errorf("%w: %q", ErrInvalidPrefix, prefix)
	}
	return nil
}

// Prefix returns the configured prefix.
func (g *Generator) Prefix() string {
	return g.prefix
}

// Next draws a new number. Callers serialize on the counter, never on the generator.
func (g *Generator) Next(ctx context.Context) (string, error) {
	n, err := g.counter.IncrementAndGet(ctx)
	if err != nil {
		return "", fmt.Errorf("next ticket number: %w", err)
	}
	return Format(g.prefix, n), nil
}

// ExtractNumber returns the first bracketed [PREFIX-digits] tag in subject.
func (g *Generator) ExtractNumber(subject string) (string, bool) {
	m := g.tag.FindStringSubmatch(subject)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Format renders a ticket number.
func Format(prefix string, n int64) string {
	return fmt.Sprintf("%s-%d", prefix, n)
}

// TagPattern matches a bracketed ticket number for prefix and captures it without brackets.
func TagPattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`\[(` + regexp.QuoteMeta(prefix) + `-\d+)\]`)
}
