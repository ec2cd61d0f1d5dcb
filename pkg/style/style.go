// Package style turns map style descriptions into the query fragment the
// static map provider understands.
package style

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// separator is an URL-encoded "|"
const separator = "%7C"

// Number keeps the literal text of a numeric styler value, so 1.0 stays 1.0
type Number string

func (n *Number) UnmarshalJSON(b []byte) error {
	var num json.Number
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&num); err != nil {
		return fmt.Errorf("styler value %s is not a number", b)
	}
	*n = Number(num.String())
	return nil
}

func (n *Number) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode || (node.Tag != "!!int" && node.Tag != "!!float") {
		return fmt.Errorf("line %d: styler value %q is not a number", node.Line, node.Value)
	}
	*n = Number(node.Value)
	return nil
}

// Styler is one entry of a rule's stylers list. Any subset may be set.
type Styler struct {
	Color      string `json:"color,omitempty" yaml:"color,omitempty"`
	Saturation Number `json:"saturation,omitempty" yaml:"saturation,omitempty"`
	Lightness  Number `json:"lightness,omitempty" yaml:"lightness,omitempty"`
	Visibility string `json:"visibility,omitempty" yaml:"visibility,omitempty"`
	Weight     Number `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// Rule selects map features and elements and styles them
type Rule struct {
	FeatureType string   `json:"featureType,omitempty" yaml:"featureType,omitempty"`
	ElementType string   `json:"elementType,omitempty" yaml:"elementType,omitempty"`
	Stylers     []Styler `json:"stylers" yaml:"stylers"`
}

// Encode renders rules as repeated &style= parameters. Rules that select and
// style nothing are skipped.
func Encode(rules []Rule) string {
	var sb strings.Builder
	for _, r := range rules {
		var parts []string
		if r.FeatureType != "" {
			parts = append(parts, "feature:"+r.FeatureType)
		}
		if r.ElementType != "" {
			parts = append(parts, "element:"+r.ElementType)
		}
		for _, s := range r.Stylers {
			if s.Color != "" {
				parts = append(parts, "color:0x"+strings.TrimPrefix(s.Color, "#"))
			}
			if s.Saturation != "" {
				parts = append(parts, "saturation:"+string(s.Saturation))
			}
			if s.Lightness != "" {
				parts = append(parts, "lightness:"+string(s.Lightness))
			}
			if s.Visibility != "" {
				parts = append(parts, "visibility:"+s.Visibility)
			}
			if s.Weight != "" {
				parts = append(parts, "weight:"+string(s.Weight))
			}
		}
		if len(parts) == 0 {
			continue
		}
		sb.WriteString("&style=")
		sb.WriteString(strings.Join(parts, separator))
	}
	return sb.String()
}

// Parse decodes a style document. format is "json" or "yaml".
func Parse(data []byte, format string) ([]Rule, error) {
	var rules []Rule
	switch format {
	case "json":
		if err := json.Unmarshal(data, &rules); err != nil {
			return nil, fmt.Errorf("parse json style: %w", err)
		}
	case "yaml":
		if err := yaml.Unmarshal(data, &rules); err != nil {
			return nil, fmt.Errorf("parse yaml style: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown style format: %s", format)
	}
	return rules, nil
}

// Load reads a style file, choosing the decoder by extension
func Load(path string) ([]Rule, error) {
	format, ok := formatOf(path)
	if !ok {
		return nil, fmt.Errorf("unsupported style file %s: want .json, .yaml or .yml", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rules, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// LoadEncoded loads a style file and encodes it. An empty path means the
// provider's default style.
func LoadEncoded(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	rules, err := Load(path)
	if err != nil {
		return "", err
	}
	return Encode(rules), nil
}

// Discover lists the style files in dir, sorted by name
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := formatOf(entry.Name()); ok {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Resolve finds a style by file path or by base name in dir and returns it
// encoded. An empty ref means the provider's default style. Only files
// with a style extension are taken as paths.
func Resolve(dir, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	if _, ok := formatOf(ref); ok {
		if info, err := os.Stat(ref); err == nil && !info.IsDir() {
			return LoadEncoded(ref)
		}
	}
	return Lookup(dir, ref)
}

// Lookup finds a style by base name in dir only and returns it encoded
func Lookup(dir, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("unknown style %q", name)
	}

	paths, err := Discover(dir)
	if err != nil {
		return "", err
	}
	for _, p := range paths {
		if Name(p) == name {
			return LoadEncoded(p)
		}
	}
	return "", fmt.Errorf("unknown style %q in %s", name, dir)
}

// Name is the base name a style file is resolved by
func Name(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func formatOf(path string) (string, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json", true
	case ".yaml", ".yml":
		return "yaml", true
	}
	return "", false
}
