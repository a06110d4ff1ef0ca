// Package config loads engine configuration files.
//
// A configuration file is a flat mapping from engine keys to string,
// boolean, or integer values, written as YAML (.yaml, .yml) or JSON with
// comments and trailing commas (.json, .jsonc):
//
//	css-precision: 2
//	html-keep-comments: true
//	js-engine: esbuild
//
// The file is chosen by the --config flag or, failing that, the
// MINIFY_CONFIG environment variable. There is no search path.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/wilsonzlin/minify-ffi"
)

// EnvVar names the environment variable consulted when no path is given.
const EnvVar = "MINIFY_CONFIG"

// Resolve returns path if non-empty, else $MINIFY_CONFIG. An empty result
// means no configuration file.
func Resolve(path string) string {
	if path != "" {
		return path
	}
	return os.Getenv(EnvVar)
}

// LoadFile reads and parses the configuration file at path.
func LoadFile(path string) (minify.Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var options minify.Options
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		options, err = ParseYAML(data)
	case ".json", ".jsonc":
		options, err = ParseJSONC(data)
	default:
		return nil, fmt.Errorf("config %s: unsupported extension %q (want .yaml, .yml, .json, or .jsonc)", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return options, nil
}

// ParseYAML parses a YAML mapping of engine keys to scalar values.
func ParseYAML(data []byte) (minify.Options, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	options := make(minify.Options, len(raw))
	for key, value := range raw {
		v, err := toValue(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		options[key] = v
	}
	return options, nil
}

// ParseJSONC parses a JSON object of engine keys to scalar values. Line
// and block comments and trailing commas are allowed.
func ParseJSONC(data []byte) (minify.Options, error) {
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.UseNumber()
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	options := make(minify.Options, len(raw))
	for key, value := range raw {
		v, err := toValue(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		options[key] = v
	}
	return options, nil
}

func toValue(value any) (minify.Value, error) {
	switch v := value.(type) {
	case string:
		return minify.StringValue(v), nil
	case bool:
		return minify.BoolValue(v), nil
	case int:
		return minify.IntValue(int64(v)), nil
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return minify.Value{}, fmt.Errorf("%s is not an integer", v)
		}
		return minify.IntValue(i), nil
	default:
		return minify.Value{}, fmt.Errorf("value must be a string, boolean, or integer, got %T", value)
	}
}

// ParseOverride parses a key=value command-line override.
func ParseOverride(text string) (string, minify.Value, error) {
	key, value, ok := strings.Cut(text, "=")
	if !ok || key == "" {
		return "", minify.Value{}, fmt.Errorf("override %q: want key=value", text)
	}
	return key, minify.ParseValue(value), nil
}
