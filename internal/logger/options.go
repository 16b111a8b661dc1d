package logger

import (
	"io"
)

// Option configures New.
type Option func(*config)

// WithLevel sets the minimum level by name, see ParseLevel.
func WithLevel(level string) Option {
	return func(c *config) { c.level = ParseLevel(level) }
}

// WithPretty selects the colorized console handler.
func WithPretty(pretty bool) Option {
	return func(c *config) { c.pretty = pretty }
}

// WithJSON selects JSON lines. It wins over WithPretty.
func WithJSON(json bool) Option {
	return func(c *config) { c.json = json }
}

// WithWriter sets the destination, stdout by default.
func WithWriter(w io.Writer) Option {
	return func(c *config) { c.w = w }
}

// WithSource adds the calling file and line to every record.
func WithSource(source bool) Option {
	return func(c *config) { c.source = source }
}
