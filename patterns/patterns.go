// Package patterns embeds the default pattern catalog shipped with
// datadetector: one YAML file per namespace under catalog/.
package patterns

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/Tributary-ai-services/datadetector/pkg/config"
	"github.com/Tributary-ai-services/datadetector/pkg/scan"
)

//go:embed catalog/*.yaml
var catalog embed.FS

// Files lists the embedded catalog files in load order
func Files() []string {
	names, err := fs.Glob(catalog, "catalog/*.yaml")
	if err != nil {
		// only returned for a malformed glob
		panic(err)
	}
	sort.Strings(names)
	return names
}

// Default parses the embedded catalog into pattern specs
func Default() ([]scan.PatternSpec, error) {
	var specs []scan.PatternSpec
	for _, name := range Files() {
		data, err := catalog.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("reading embedded catalog %s: %w", name, err)
		}
		parsed, err := config.ParsePatternFile(data, "embedded:"+path.Base(name))
		if err != nil {
			return nil, err
		}
		specs = append(specs, parsed...)
	}
	return specs, nil
}

// MustDefault is Default for package-level initialisation; the embedded
// catalog is covered by tests so a failure here is a build defect
func MustDefault() []scan.PatternSpec {
	specs, err := Default()
	if err != nil {
		panic(err)
	}
	return specs
}

// Registry builds the embedded catalog into a registry
func Registry(opts ...scan.BuildOption) (*scan.Registry, error) {
	specs, err := Default()
	if err != nil {
		return nil, err
	}
	return scan.Build(specs, opts...)
}

// Load combines the embedded catalog, when includeDefaults is set, with the
// pattern files found under paths. Embedded specs come first so a file
// reusing a built-in full id is skipped as a duplicate.
func Load(includeDefaults bool, paths []string) ([]scan.PatternSpec, error) {
	var specs []scan.PatternSpec
	if includeDefaults {
		defaults, err := Default()
		if err != nil {
			return nil, err
		}
		specs = append(specs, defaults...)
	}
	if len(paths) > 0 {
		loaded, err := config.LoadPatternPaths(paths)
		if err != nil {
			return nil, err
		}
		specs = append(specs, loaded...)
	}
	return specs, nil
}
