package lockfile

import (
	"cmp"
	"slices"
	"sync"

	"github.com/depscan/depscan/pkg/models"
)

var (
	registryMu sync.RWMutex
	registry   = map[models.Format]Parser{}
)

// Register makes a parser available for detection. It panics if a parser
// for the same format has already been registered.
func Register(p Parser) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, ok := registry[p.Format()]; ok {
		panic("parser for " + string(p.Format()) + " has already been registered")
	}

	registry[p.Format()] = p
}

// Get returns the parser registered for a format.
func Get(format models.Format) (Parser, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	p, ok := registry[format]

	return p, ok
}

// List returns every registered parser, lockfiles before manifests, each
// group in format order.
func List() []Parser {
	registryMu.RLock()
	defer registryMu.RUnlock()

	parsers := make([]Parser, 0, len(registry))
	for _, p := range registry {
		parsers = append(parsers, p)
	}

	slices.SortFunc(parsers, func(a, b Parser) int {
		if c := cmp.Compare(b.Kind().Priority(), a.Kind().Priority()); c != 0 {
			return c
		}

		return cmp.Compare(a.Format(), b.Format())
	})

	return parsers
}
