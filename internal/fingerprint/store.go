// Package fingerprint stores tool-list baselines for the rug pull guard.
// Baselines are process-local, in-memory, single-replica state: running
// multiple replicas without session affinity produces inconsistent
// baselines, which is an accepted limitation of the design.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/unitone-ai/rampart/internal/mcp"
)

// Fingerprint is a structural snapshot of one tool's advertised identity.
// Description and schema are hashed separately so a diff can classify which
// mutation mode occurred.
type Fingerprint struct {
	Name        string
	Description string // sha256 of the description text
	Schema      string // sha256 of the canonicalized input schema
}

// New computes the fingerprint of a tool.
func New(tool mcp.Tool) Fingerprint {
	return Fingerprint{
		Name:        tool.Name,
		Description: hashString(tool.Description),
		Schema:      hashSchema(tool.InputSchema),
	}
}

// Snapshot is a tool-name-keyed fingerprint set for one scope.
type Snapshot map[string]Fingerprint

// TakeSnapshot fingerprints every tool in a list.
func TakeSnapshot(tools []mcp.Tool) Snapshot {
	snap := make(Snapshot, len(tools))
	for _, t := range tools {
		snap[t.Name] = New(t)
	}
	return snap
}

// Diff classifies the changes between a stored baseline and a new snapshot.
// First is true when no baseline existed for the scope yet; in that case
// the other fields are empty (first observation is trusted).
type Diff struct {
	First              bool
	DescriptionChanged []string
	SchemaChanged      []string
	Removed            []string
	Added              []string
}

// Empty reports whether the diff carries no changes.
func (d Diff) Empty() bool {
	return !d.First &&
		len(d.DescriptionChanged) == 0 && len(d.SchemaChanged) == 0 &&
		len(d.Removed) == 0 && len(d.Added) == 0
}

// scopeState is the baseline for one scope key. Its mutex serializes
// concurrent tools/list evaluations for the same scope so two in-flight
// comparisons cannot clobber each other's baseline update.
type scopeState struct {
	mu          sync.Mutex
	established bool
	snap        Snapshot
}

// Store holds baselines keyed by scope. Construct one per process and
// inject it; tests build isolated stores per case.
type Store struct {
	mu     sync.Mutex
	scopes map[string]*scopeState
}

// NewStore creates an empty fingerprint store.
func NewStore() *Store {
	return &Store{scopes: make(map[string]*scopeState)}
}

// Scope is a locked handle on one scope's baseline. Callers must Release
// it when done; Compare and Commit are only valid before Release.
type Scope struct {
	state *scopeState
}

// Acquire locks the baseline for a scope key, creating it if absent.
func (s *Store) Acquire(key string) *Scope {
	s.mu.Lock()
	st, ok := s.scopes[key]
	if !ok {
		st = &scopeState{}
		s.scopes[key] = st
	}
	s.mu.Unlock()

	st.mu.Lock()
	return &Scope{state: st}
}

// Compare diffs the stored baseline against a new snapshot.
func (sc *Scope) Compare(snap Snapshot) Diff {
	st := sc.state
	if !st.established {
		return Diff{First: true}
	}

	var d Diff
	for name, fp := range snap {
		prev, ok := st.snap[name]
		if !ok {
			d.Added = append(d.Added, name)
			continue
		}
		if prev.Description != fp.Description {
			d.DescriptionChanged = append(d.DescriptionChanged, name)
		}
		if prev.Schema != fp.Schema {
			d.SchemaChanged = append(d.SchemaChanged, name)
		}
	}
	for name := range st.snap {
		if _, ok := snap[name]; !ok {
			d.Removed = append(d.Removed, name)
		}
	}
	return d
}

// Commit ratchets the baseline forward to the given snapshot. Called only
// when the guard allows the tool list, so the next comparison runs against
// the latest accepted state.
func (sc *Scope) Commit(snap Snapshot) {
	sc.state.established = true
	sc.state.snap = snap
}

// Release unlocks the scope.
func (sc *Scope) Release() {
	sc.state.mu.Unlock()
	sc.state = nil
}

// Drop discards the baseline for a scope key. Called when a session ends
// so a reconnecting session starts from a fresh, trusting baseline.
func (s *Store) Drop(key string) {
	s.mu.Lock()
	delete(s.scopes, key)
	s.mu.Unlock()
}

// Len returns the number of tracked scopes.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scopes)
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// hashSchema canonicalizes a schema through encoding/json, which emits map
// keys in sorted order, so equivalent schemas hash identically.
func hashSchema(schema map[string]any) string {
	if schema == nil {
		return hashString("")
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return hashString("")
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
