// Package engine provides interchangeable backends that compute the
// aggregate views of an event log.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/logflow/pmdash/internal/model"
	"github.com/logflow/pmdash/pkg/aggregate"
)

// Engine names.
const (
	NameNative = "native"
	NameDuckDB = "duckdb"
)

// Engine computes all views of a validated log.
type Engine interface {
	Name() string
	Aggregate(ctx context.Context, log *model.Log) (*aggregate.Views, error)
	Close() error
}

// New returns the engine registered under name. An empty name selects
// the native engine.
func New(name string) (Engine, error) {
	switch strings.ToLower(name) {
	case "", NameNative:
		return NewNative(), nil
	case NameDuckDB:
		return NewDuckDB()
	default:
		return nil, fmt.Errorf("unknown engine %q (available: %s)", name, strings.Join(Names(), ", "))
	}
}

// Names lists the available engines.
func Names() []string {
	return []string{NameNative, NameDuckDB}
}
