package bundle

import (
	"context"
)

// Mode selects development or production output.
type Mode int

const (
	// Development builds carry the injected reload client.
	Development Mode = iota
	// Production builds are left untouched.
	Production
)

func (m Mode) String() string {
	if m == Production {
		return "production"
	}

	return "development"
}

// Result is the outcome of a single build.
type Result struct {
	Success     bool
	Diagnostics string
	OutputPath  string
}

// Pipeline builds one vendor's extension output.
//
// Build returns an error only when the pipeline itself cannot run; a
// failing build is reported through Result.Success and Result.Diagnostics.
type Pipeline interface {
	Build(ctx context.Context, mode Mode) (*Result, error)

	// Watch blocks until ctx is cancelled, calling fn with each batch of
	// changed source paths in notification order.
	Watch(ctx context.Context, fn func(paths []string)) error

	OutputPath() string
}
