package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/Tributary-ai-services/datadetector/pkg/scan"
)

// ErrNoPatternFiles is returned when a configured path selects no catalog files.
var ErrNoPatternFiles = errors.New("no pattern files found")

// PatternFile is one catalog document. Patterns without their own
// namespace inherit the file's.
type PatternFile struct {
	Namespace   string             `yaml:"namespace"`
	Description string             `yaml:"description,omitempty"`
	Patterns    []scan.PatternSpec `yaml:"patterns"`
}

// ParsePatternFile decodes a catalog document and returns its specs with
// the file namespace filled in. Environment references are substituted
// like in the main config.
func ParsePatternFile(data []byte, source string) ([]scan.PatternSpec, error) {
	data = substituteEnvVars(data)

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing pattern file %s: %w", source, err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	if root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parsing pattern file %s: top level must be a mapping with a patterns list", source)
	}

	var pf PatternFile
	if err := root.Content[0].Decode(&pf); err != nil {
		return nil, fmt.Errorf("parsing pattern file %s: %w", source, err)
	}

	specs := make([]scan.PatternSpec, 0, len(pf.Patterns))
	for _, s := range pf.Patterns {
		if s.NamespaceName() == "" {
			s.Namespace = pf.Namespace
		}
		specs = append(specs, s)
	}
	return specs, nil
}

// LoadPatternFile reads and parses one catalog file.
func LoadPatternFile(path string) ([]scan.PatternSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pattern file %s: %w", path, err)
	}
	return ParsePatternFile(data, path)
}

// LoadPatternPaths expands files, directories and doublestar globs into
// catalog files and concatenates their specs in a stable order.
func LoadPatternPaths(paths []string) ([]scan.PatternSpec, error) {
	files, err := ExpandPatternPaths(paths)
	if err != nil {
		return nil, err
	}

	var specs []scan.PatternSpec
	for _, f := range files {
		s, err := LoadPatternFile(f)
		if err != nil {
			return nil, err
		}
		specs = append(specs, s...)
	}
	return specs, nil
}

// ExpandPatternPaths resolves each configured path to the catalog files it
// names. Directories contribute their .yaml and .yml files, recursively.
func ExpandPatternPaths(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(f string) {
		if !seen[f] {
			seen[f] = true
			files = append(files, f)
		}
	}

	for _, p := range paths {
		var found []string
		if isGlob(p) {
			matches, err := doublestar.FilepathGlob(p, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("expanding pattern glob %s: %w", p, err)
			}
			found = matches
		} else {
			info, err := os.Stat(p)
			if err != nil {
				return nil, fmt.Errorf("reading pattern path %s: %w", p, err)
			}
			if info.IsDir() {
				matches, err := doublestar.FilepathGlob(filepath.Join(p, "**", "*.{yaml,yml}"), doublestar.WithFilesOnly())
				if err != nil {
					return nil, fmt.Errorf("reading pattern directory %s: %w", p, err)
				}
				found = matches
			} else {
				found = []string{p}
			}
		}

		if len(found) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoPatternFiles, p)
		}
		sort.Strings(found)
		for _, f := range found {
			add(f)
		}
	}
	return files, nil
}

func isGlob(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}
