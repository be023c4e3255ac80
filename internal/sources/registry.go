// Package sources loads the declarative source definitions the crawl pipeline runs against.
package sources

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/target/mmk-crawlsync/internal/domain/extract"
	"github.com/target/mmk-crawlsync/internal/domain/model"
	"github.com/target/mmk-crawlsync/internal/domain/workitem"
	apperrors "github.com/target/mmk-crawlsync/internal/errors"
)

//go:embed defaults.yaml
var builtin []byte

// ErrDuplicateSource is returned when two definitions share a name.
var ErrDuplicateSource = errors.New("duplicate source name")

// Source is a validated definition with its compiled schema and calendar.
type Source struct {
	Def      *model.SourceDefinition
	Schema   *extract.Schema
	Calendar *workitem.TradingCalendar
}

// Registry holds sources by name. It is immutable after loading.
type Registry struct {
	byName map[string]*Source
	names  []string
}

type file struct {
	Defaults model.SourceDefinition   `yaml:"defaults"`
	Sources  []model.SourceDefinition `yaml:"sources"`
}

// Builtin returns the registry compiled from the embedded definitions.
func Builtin() (*Registry, error) {
	return Parse(builtin)
}

// Load reads definitions from path, or the embedded definitions when path is empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Builtin()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// Parse decodes a YAML sources document, merges defaults into every source and compiles it.
func Parse(data []byte) (*Registry, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}

	reg := &Registry{byName: make(map[string]*Source, len(f.Sources))}
	for i := range f.Sources {
		def := f.Sources[i]
		if err := mergo.Merge(&def, f.Defaults); err != nil {
			return nil, fmt.Errorf("merge defaults into %s: %w", def.Name, err)
		}
		src, err := compile(&def)
		if err != nil {
			return nil, err
		}
		if _, dup := reg.byName[def.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, def.Name)
		}
		reg.byName[def.Name] = src
		reg.names = append(reg.names, def.Name)
	}
	sort.Strings(reg.names)
	return reg, nil
}

func compile(def *model.SourceDefinition) (*Source, error) {
	schema, err := extract.NewSchema(def)
	if err != nil {
		return nil, err
	}
	cal, err := workitem.NewTradingCalendar(def.Holidays)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", def.Name, err)
	}
	return &Source{Def: def, Schema: schema, Calendar: cal}, nil
}

// Resolve returns the named source, or a missing configuration error.
func (r *Registry) Resolve(name string) (*Source, error) {
	if name == "" {
		return nil, apperrors.MissingConfigurationf("no source given and no default source configured")
	}
	src, ok := r.byName[name]
	if !ok {
		return nil, apperrors.MissingConfigurationf("source %q is not configured", name)
	}
	return src, nil
}

// Names lists registered sources in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// All returns every source in name order.
func (r *Registry) All() []*Source {
	out := make([]*Source, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.byName[n])
	}
	return out
}
