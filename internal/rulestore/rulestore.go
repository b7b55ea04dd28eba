// Package rulestore persists the rule engine's configuration to the JSON
// file format named in the external interfaces (a JSON array of Rule
// objects), and adapts a rule engine to the bridge's RuleUpdater interface.
package rulestore

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"

	"github.com/syrahproxy/syrah/internal/rules"
)

// Store reads and writes a []*rules.Rule snapshot to a single JSON file.
type Store struct {
	path string
}

// NewStore returns a Store backed by path. The file need not exist yet;
// Load treats a missing file as an empty rule set.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the rule set from disk. A missing file is not an error: it
// yields an empty rule set, matching a fresh install with no rules
// configured yet.
func (s *Store) Load() ([]*rules.Rule, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []*rules.Rule
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if err := validateAll(out); err != nil {
		return nil, err
	}
	return out, nil
}

// validateAll compiles every rule's matcher pattern concurrently, mirroring
// how a fan-out sync of independent units is aggregated elsewhere in this
// codebase: one goroutine per rule, errors collected rather than returned
// on the first failure.
func validateAll(set []*rules.Rule) error {
	var group multierror.Group
	for _, r := range set {
		r := r
		group.Go(func() error {
			if err := r.Matcher.Validate(); err != nil {
				return fmt.Errorf("rule %s: %w", r.ID, err)
			}
			return nil
		})
	}
	return group.Wait().ErrorOrNil()
}

// Save writes the rule set to disk as indented JSON, overwriting whatever
// was there.
func (s *Store) Save(set []*rules.Rule) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// Bound wires a rule engine to a Store so that a bridge "updateRules"
// command both replaces the engine's live snapshot and persists the new
// rule set, implementing bridge.RuleUpdater.
type Bound struct {
	store  *Store
	engine *rules.Engine
}

// Bind returns a Bound adapter over engine and store.
func Bind(engine *rules.Engine, store *Store) *Bound {
	return &Bound{store: store, engine: engine}
}

// ReplaceRules implements bridge.RuleUpdater: it decodes raw as a JSON
// array of Rule objects, installs it as the engine's active snapshot, and
// persists it to the backing file.
func (b *Bound) ReplaceRules(raw json.RawMessage) error {
	var set []*rules.Rule
	if err := json.Unmarshal(raw, &set); err != nil {
		return err
	}
	b.engine.UpdateRules(set)
	return b.store.Save(set)
}
