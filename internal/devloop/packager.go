package devloop

import (
	"context"
	"io"

	"github.com/hupe1980/extdev/internal/bundle"
	"github.com/hupe1980/extdev/internal/target"
)

// Packager turns a successful build output into a distributable artifact.
type Packager interface {
	Package(ctx context.Context, t target.BuildTarget, outputPath string) error
}

// CommandPackager runs an external packaging command in the project
// directory. The target is described through EXTDEV_TARGET_* variables.
type CommandPackager struct {
	Line string
	Out  io.Writer
}

// Package implements Packager.
func (p *CommandPackager) Package(ctx context.Context, t target.BuildTarget, outputPath string) error {
	out := p.Out
	if out == nil {
		out = io.Discard
	}

	return bundle.Command{
		Line: p.Line,
		Dir:  t.ProjectPath,
		Env:  bundle.TargetEnv(t.Vendor.String(), outputPath, bundle.Production),
	}.Run(ctx, out)
}
