// Package client defines the range resolvers that pin a version constraint
// to a concrete release and report that release's direct requirements.
package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/depscan/depscan/internal/metrics"
	"github.com/depscan/depscan/pkg/models"
)

var (
	ErrUnsupportedEcosystem = errors.New("ecosystem not supported by any range resolver")
	ErrNoMatchingVersion    = errors.New("no version satisfies the constraint")
)

// Requirement is a dependency on name within a version constraint.
type Requirement struct {
	Name       string
	Constraint string
}

// Resolved is the release a constraint resolved to.
type Resolved struct {
	Version      string
	Dependencies []Requirement
}

// RangeResolver pins a constraint on a package to a single version.
type RangeResolver interface {
	ResolveRange(ctx context.Context, ecosystem models.Ecosystem, name, constraint string) (Resolved, error)
}

// ResolutionError is returned when a constraint could not be resolved.
type ResolutionError struct {
	Ecosystem models.Ecosystem
	Name      string
	Range     string
	Err       error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving %s %s@%s: %v", e.Ecosystem, e.Name, e.Range, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Dispatcher routes each request to the resolver registered for its
// ecosystem. Any error returned is a *ResolutionError.
type Dispatcher struct {
	resolvers map[models.Ecosystem]RangeResolver
	Metrics   *metrics.Metrics
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{resolvers: make(map[models.Ecosystem]RangeResolver)}
}

// Register sets the resolver for the given ecosystems, replacing any
// previously registered one.
func (d *Dispatcher) Register(r RangeResolver, ecosystems ...models.Ecosystem) {
	for _, eco := range ecosystems {
		d.resolvers[eco] = r
	}
}

// Supports reports whether a resolver is registered for ecosystem.
func (d *Dispatcher) Supports(ecosystem models.Ecosystem) bool {
	_, ok := d.resolvers[ecosystem]

	return ok
}

func (d *Dispatcher) ResolveRange(ctx context.Context, ecosystem models.Ecosystem, name, constraint string) (Resolved, error) {
	r, ok := d.resolvers[ecosystem]
	if !ok {
		d.Metrics.Resolution(string(ecosystem), false)

		return Resolved{}, &ResolutionError{Ecosystem: ecosystem, Name: name, Range: constraint, Err: ErrUnsupportedEcosystem}
	}

	res, err := r.ResolveRange(ctx, ecosystem, name, constraint)
	d.Metrics.Resolution(string(ecosystem), err == nil)
	if err != nil {
		var resErr *ResolutionError
		if errors.As(err, &resErr) {
			return Resolved{}, err
		}

		return Resolved{}, &ResolutionError{Ecosystem: ecosystem, Name: name, Range: constraint, Err: err}
	}

	return res, nil
}

// sortRequirements orders requirements by name, dropping exact duplicates.
func sortRequirements(reqs []Requirement) []Requirement {
	slices.SortFunc(reqs, func(a, b Requirement) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}

		return strings.Compare(a.Constraint, b.Constraint)
	})

	return slices.Compact(reqs)
}
