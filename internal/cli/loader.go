package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/emberfall/reckoner/internal/cache"
	"github.com/emberfall/reckoner/internal/engine"
	"github.com/emberfall/reckoner/internal/harness"
	"github.com/emberfall/reckoner/internal/store"
)

// Fixture is a scenario file loaded into a live engine over an
// in-memory store. Close releases the store.
type Fixture struct {
	Scenario *harness.Scenario
	Engine   *engine.Engine
	Store    *store.SQLite
}

// Close releases the fixture's store.
func (f *Fixture) Close() error { return f.Store.Close() }

// LoadFixture reads a scenario file and seeds it into a fresh engine.
// Seeding runs full validation, so a fixture with a cyclic formula or a
// forbidden effect path fails here rather than mid-command.
func LoadFixture(path string) (*Fixture, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("fixture not found: %s", path)}
	}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, Message: "load fixture", Err: err}
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, Message: "open store", Err: err}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(st, cache.NewMemory(cache.DefaultConfig()), engine.WithLogger(logger))

	if err := harness.Seed(context.Background(), scenario, st, eng); err != nil {
		st.Close()
		return nil, &ExitError{Code: ExitFailure, Message: "seed fixture", Err: err}
	}

	return &Fixture{Scenario: scenario, Engine: eng, Store: st}, nil
}
