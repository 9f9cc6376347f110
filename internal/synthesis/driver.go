// Package synthesis turns the conflicts left by a convergence merge into
// resolution requests, obtains resolved content from a Resolver and
// applies it to the primary workspace with a mandatory re-check.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"text/template"

	"github.com/dusk-indust/trident/internal/convergence"
	"github.com/dusk-indust/trident/internal/prompts"
)

// RequestSide is one contributing version of a conflicted path.
type RequestSide struct {
	Label    string `json:"label"`
	Revision string `json:"revision"`
	Content  string `json:"content"`
	Present  bool   `json:"present"`
}

// ResolutionRequest is everything a resolver needs to produce the merged
// content of one path.
type ResolutionRequest struct {
	Path          string        `json:"path"`
	Arity         int           `json:"arity"`
	Sides         []RequestSide `json:"sides"`
	Base          string        `json:"base"`
	BasePresent   bool          `json:"basePresent"`
	Specification string        `json:"specification"`
	Guidance      string        `json:"guidance"`
}

// Report summarizes a synthesis pass.
type Report struct {
	Requests []ResolutionRequest // built for every conflicted path
	Resolved []string            // paths applied and verified
}

// Driver builds resolution requests and applies resolutions.
type Driver struct {
	engine   *convergence.Engine
	spec     string
	guidance *template.Template
	resolver Resolver
	logger   *slog.Logger
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithResolver sets the resolver used by Run.
func WithResolver(r Resolver) DriverOption {
	return func(d *Driver) { d.resolver = r }
}

// WithGuidance overrides the judge guidance template.
func WithGuidance(t *template.Template) DriverOption {
	return func(d *Driver) {
		if t != nil {
			d.guidance = t
		}
	}
}

// WithLogger sets the driver's logger.
func WithLogger(logger *slog.Logger) DriverOption {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDriver returns a Driver applying resolutions through engine. spec is
// the specification text included in every request.
func NewDriver(engine *convergence.Engine, spec string, opts ...DriverOption) *Driver {
	d := &Driver{
		engine:   engine,
		spec:     spec,
		guidance: prompts.Judge(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HasResolver reports whether a resolver is configured.
func (d *Driver) HasResolver() bool { return d.resolver != nil }

// BuildRequest converts a conflict record into a resolution request.
func (d *Driver) BuildRequest(rec convergence.ConflictRecord) (ResolutionRequest, error) {
	req := ResolutionRequest{
		Path:          rec.Path,
		Arity:         rec.Arity,
		Base:          string(rec.Base.Content),
		BasePresent:   rec.Base.Present,
		Specification: d.spec,
	}
	data := prompts.JudgeData{Path: rec.Path}
	for i, s := range rec.Sides {
		req.Sides = append(req.Sides, RequestSide{
			Label:    s.Label,
			Revision: string(s.Revision),
			Content:  string(s.Content),
			Present:  s.Present,
		})
		data.Sides = append(data.Sides, prompts.JudgeSide{Number: i + 1, Label: s.Label, Present: s.Present})
	}

	var b strings.Builder
	if err := d.guidance.Execute(&b, data); err != nil {
		return req, fmt.Errorf("synthesis: render guidance for %s: %w", rec.Path, err)
	}
	req.Guidance = b.String()
	return req, nil
}

// Apply writes content as the resolution of path and verifies that the
// path is no longer conflicted.
func (d *Driver) Apply(ctx context.Context, path, content string) error {
	if HasConflictMarkers([]byte(content)) {
		return fmt.Errorf("synthesis: %s: %w", path, ErrResidualMarkers)
	}
	remaining, err := d.engine.WriteResolution(ctx, path, []byte(content))
	if err != nil {
		return err
	}
	paths := make([]string, len(remaining))
	for i, c := range remaining {
		paths[i] = c.Path
	}
	if slices.Contains(paths, path) {
		return &ResolutionIncompleteError{Path: path, Remaining: paths}
	}
	d.logger.Info("resolved conflict", "path", path, "remaining", len(paths))
	return nil
}

// Resolve asks the resolver for path's content and applies it.
func (d *Driver) Resolve(ctx context.Context, req ResolutionRequest) error {
	if d.resolver == nil {
		return ErrNoResolver
	}
	content, err := d.resolver.Resolve(ctx, req)
	if err != nil {
		return fmt.Errorf("synthesis: resolve %s: %w", req.Path, err)
	}
	return d.Apply(ctx, req.Path, content)
}

// Run builds a request for every record. With a resolver configured each
// path is resolved and applied independently; failures are joined after
// every path has been attempted. Without one the requests are only
// returned.
func (d *Driver) Run(ctx context.Context, records []convergence.ConflictRecord) (*Report, error) {
	report := &Report{}
	var errs []error
	for _, rec := range records {
		req, err := d.BuildRequest(rec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		report.Requests = append(report.Requests, req)
		if d.resolver == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := d.Resolve(ctx, req); err != nil {
			d.logger.Warn("resolution failed", "path", rec.Path, "err", err)
			errs = append(errs, err)
			continue
		}
		report.Resolved = append(report.Resolved, rec.Path)
	}
	return report, errors.Join(errs...)
}
