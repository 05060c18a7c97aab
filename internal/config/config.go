// Package config loads and validates the drover configuration file.
//
// The file is YAML for operator convenience, but the accepted shape is
// defined once, in CUE: the decoded document is unified with an embedded
// schema and must validate as concrete before any Go code looks at it.
// Schema violations therefore carry CUE's field-level positions instead
// of a generic unmarshal error.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// schema is the authoritative shape of the configuration document. It is
// a definition so unknown fields are rejected at every level.
const schema = `
#Config: {
	// Allow-listed roots. Every mutating path must resolve under one
	// of these. Required, non-empty.
	roots: [string, ...string]

	// Directory for the job table, ledgers, journals, and scratch space.
	state_dir: string

	workers?:          int & >0 & <=8
	batch_item_limit?: int & >0

	bundle?: {
		max_file_bytes?:  int & >0
		max_total_bytes?: int & >0
		// Go duration string, e.g. "30s".
		time_budget?: string
	}
}
`

// Bundle holds the optional bundle build guards.
type Bundle struct {
	MaxFileBytes  int64         `yaml:"max_file_bytes"`
	MaxTotalBytes int64         `yaml:"max_total_bytes"`
	TimeBudget    time.Duration `yaml:"-"`
}

// Config is the validated configuration document.
type Config struct {
	Roots          []string `yaml:"roots"`
	StateDir       string   `yaml:"state_dir"`
	Workers        int      `yaml:"workers"`
	BatchItemLimit int      `yaml:"batch_item_limit"`
	Bundle         Bundle   `yaml:"bundle"`
}

// Error is a configuration loading or validation failure.
type Error struct {
	Path    string
	Message string
}

func (e *Error) Error() string {
	if e.Path == "" {
		return "config: " + e.Message
	}
	return fmt.Sprintf("config %s: %s", e.Path, e.Message)
}

// Load reads, validates, and normalizes the configuration at path.
// Relative roots and state_dir are resolved against the file's directory,
// so a config travels with the tree it describes.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Message: err.Error()}
	}
	cfg, err := Parse(raw)
	if err != nil {
		if ce, ok := err.(*Error); ok && ce.Path == "" {
			ce.Path = path
		}
		return nil, err
	}

	base := filepath.Dir(path)
	for i, root := range cfg.Roots {
		cfg.Roots[i] = absAgainst(base, root)
	}
	cfg.StateDir = absAgainst(base, cfg.StateDir)
	return cfg, nil
}

// Parse validates a raw YAML document against the schema and decodes it.
func Parse(raw []byte) (*Config, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &Error{Message: "not valid YAML: " + err.Error()}
	}
	if doc == nil {
		return nil, &Error{Message: "document is empty"}
	}

	ctx := cuecontext.New()
	sv := ctx.CompileString(schema).LookupPath(cue.MakePath(cue.Def("#Config")))
	if err := sv.Err(); err != nil {
		return nil, &Error{Message: "internal schema error: " + err.Error()}
	}
	val := sv.Unify(ctx.Encode(doc))
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, &Error{Message: err.Error()}
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, &Error{Message: err.Error()}
	}

	// time_budget is schema-checked as a string; the duration parse is the
	// one constraint CUE's core cannot express.
	if budget := lookupString(val, "bundle", "time_budget"); budget != "" {
		d, err := time.ParseDuration(budget)
		if err != nil {
			return nil, &Error{Message: "bundle.time_budget: " + err.Error()}
		}
		cfg.Bundle.TimeBudget = d
	}
	return &cfg, nil
}

func lookupString(v cue.Value, path ...string) string {
	sel := make([]cue.Selector, len(path))
	for i, p := range path {
		sel[i] = cue.Str(p)
	}
	fv := v.LookupPath(cue.MakePath(sel...))
	if !fv.Exists() {
		return ""
	}
	s, err := fv.String()
	if err != nil {
		return ""
	}
	return s
}

func absAgainst(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}
