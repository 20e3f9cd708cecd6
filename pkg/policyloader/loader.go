// Package policyloader loads governance policy bundles from external
// sources: JSON or YAML files on disk, or a SQL table.
//
// A bundle is a versioned set of policies, each carrying its SoD
// constraints and an optional CEL appliesWhen predicate, so policy changes
// ship without code deployments.
package policyloader

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/45ck/Portarium-sub009/pkg/canonicalize"
	"github.com/45ck/Portarium-sub009/pkg/contracts"
	"github.com/45ck/Portarium-sub009/pkg/governance"
	"github.com/45ck/Portarium-sub009/pkg/schema"
)

// Bundle is a versioned collection of policies.
type Bundle struct {
	Version  string              `json:"version"`
	Name     string              `json:"name"`
	Policies []governance.Policy `json:"policies"`
	// Hash is the content-addressed hash of the canonical bundle, set on load.
	Hash string `json:"hash,omitempty"`
}

// Format is the encoding of a bundle file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the format from a file extension.
func FormatForPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	}
	return "", false
}

// Loader loads and manages policy bundles from a directory.
type Loader struct {
	mu        sync.RWMutex
	bundles   map[string]*Bundle // name -> bundle
	sources   map[string]string  // name -> file path
	bundleDir string
	selector  *governance.Selector
	onReload  func(bundle *Bundle)
	logger    *slog.Logger
}

// NewLoader creates a policy bundle loader for the given directory.
func NewLoader(bundleDir string) *Loader {
	return &Loader{
		bundles:   make(map[string]*Bundle),
		sources:   make(map[string]string),
		bundleDir: bundleDir,
		logger:    slog.Default().With("component", "policyloader"),
	}
}

// WithSelector makes the loader compile every appliesWhen expression at
// load time, so a bad expression rejects the bundle instead of failing at
// request time.
func (l *Loader) WithSelector(sel *governance.Selector) *Loader {
	l.selector = sel
	return l
}

// WithLogger overrides the logger.
func (l *Loader) WithLogger(logger *slog.Logger) *Loader {
	l.logger = logger.With("component", "policyloader")
	return l
}

// OnReload registers a callback invoked when a bundle is loaded or reloaded.
func (l *Loader) OnReload(fn func(bundle *Bundle)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReload = fn
}

// LoadAll loads every .json, .yaml and .yml bundle in the directory, in
// file name order.
func (l *Loader) LoadAll() error {
	entries, err := os.ReadDir(l.bundleDir)
	if err != nil {
		return fmt.Errorf("policyloader: read dir %s: %w", l.bundleDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := FormatForPath(entry.Name()); !ok {
			continue
		}
		path := filepath.Join(l.bundleDir, entry.Name())
		if err := l.LoadFile(path); err != nil {
			return fmt.Errorf("policyloader: load %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// LoadFile loads a single bundle. Reloading the file that first declared a
// bundle replaces it. A bundle name declared by a different file, or a
// policy ID already owned by another loaded bundle, is rejected.
func (l *Loader) LoadFile(path string) error {
	format, ok := FormatForPath(path)
	if !ok {
		return fmt.Errorf("unsupported bundle extension %q", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	bundle, err := ParseBundle(data, format)
	if err != nil {
		return err
	}
	if l.selector != nil {
		for _, p := range bundle.Policies {
			if p.AppliesWhen == "" {
				continue
			}
			if err := l.selector.Compile(p.AppliesWhen); err != nil {
				return fmt.Errorf("policy %s: %w", p.PolicyID, err)
			}
		}
	}

	l.mu.Lock()
	if src, ok := l.sources[bundle.Name]; ok && src != filepath.Clean(path) {
		l.mu.Unlock()
		return contracts.Invalid("PolicyBundle", "name",
			"bundle %q is already declared by %s", bundle.Name, src)
	}
	if err := l.checkOwnership(bundle); err != nil {
		l.mu.Unlock()
		return err
	}
	l.bundles[bundle.Name] = bundle
	l.sources[bundle.Name] = filepath.Clean(path)
	callback := l.onReload
	l.mu.Unlock()

	l.logger.Info("policy bundle loaded",
		"bundle", bundle.Name, "version", bundle.Version,
		"policies", len(bundle.Policies), "hash", bundle.Hash)

	if callback != nil {
		callback(bundle)
	}
	return nil
}

// checkOwnership must be called with l.mu held.
func (l *Loader) checkOwnership(b *Bundle) error {
	for name, other := range l.bundles {
		if name == b.Name {
			continue
		}
		for _, p := range other.Policies {
			for _, q := range b.Policies {
				if p.PolicyID == q.PolicyID {
					return contracts.Invalid("PolicyBundle", "policyId",
						"policy %q is already defined by bundle %q", q.PolicyID, name)
				}
			}
		}
	}
	return nil
}

// ParseBundle decodes and validates a bundle.
func ParseBundle(data []byte, format Format) (*Bundle, error) {
	jsonData := data
	if format == FormatYAML {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, contracts.Invalid("PolicyBundle", "", "malformed YAML: %v", err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, contracts.Invalid("PolicyBundle", "", "YAML is not representable as JSON: %v", err)
		}
		jsonData = converted
	}

	if err := schema.ValidateJSON(schema.PolicyBundle, jsonData); err != nil {
		return nil, err
	}

	var bundle Bundle
	if err := json.Unmarshal(jsonData, &bundle); err != nil {
		return nil, fmt.Errorf("parse bundle: %w", err)
	}
	if _, err := semver.NewVersion(bundle.Version); err != nil {
		return nil, contracts.Invalid("PolicyBundle", "version", "not a semantic version: %q", bundle.Version)
	}

	seen := make(map[string]bool, len(bundle.Policies))
	for _, p := range bundle.Policies {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if seen[p.PolicyID] {
			return nil, contracts.Invalid("PolicyBundle", "policyId", "duplicate policy %q", p.PolicyID)
		}
		seen[p.PolicyID] = true
	}

	hash, err := canonicalize.CanonicalHash(bundle)
	if err != nil {
		return nil, fmt.Errorf("hash bundle: %w", err)
	}
	bundle.Hash = hash
	return &bundle, nil
}

// GetBundle returns a loaded bundle by name.
func (l *Loader) GetBundle(name string) (*Bundle, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.bundles[name]
	return b, ok
}

// AllBundles returns all loaded bundles sorted by name.
func (l *Loader) AllBundles() []*Bundle {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*Bundle, 0, len(l.bundles))
	for _, b := range l.bundles {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Policies returns every policy of every bundle, bundles in name order and
// policies in file order. Inactive policies are included; selection is the
// governance.Selector's job.
func (l *Loader) Policies() []governance.Policy {
	var out []governance.Policy
	for _, b := range l.AllBundles() {
		out = append(out, b.Policies...)
	}
	if out == nil {
		out = []governance.Policy{}
	}
	return out
}
