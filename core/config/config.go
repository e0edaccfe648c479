// Package config loads the optional Beast.toml project file.
//
// A file is decoded, checked against an embedded JSON Schema and then merged
// over Default. Beast.yaml is read instead when no Beast.toml exists. A
// project with neither uses Default unchanged.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the project file looked up at the project root.
	FileName = "Beast.toml"

	// YAMLFileName is the YAML spelling of the project file.
	YAMLFileName = "Beast.yaml"
)

//go:embed schema.json
var schemaJSON string

const schemaURL = "beast://config/schema.json"

// Config is a project configuration.
type Config struct {
	Program     Program           `toml:"program" yaml:"program"`
	Compilation Compilation       `toml:"compilation" yaml:"compilation"`
	Signals     map[string]uint16 `toml:"signals" yaml:"signals"`
}

// Program describes the machine the project targets.
type Program struct {
	Target   string `toml:"target" yaml:"target"` // Semantic version of the target machine
	SystemID string `toml:"system_id" yaml:"system_id"`
	MemPages uint8  `toml:"mem_pages" yaml:"mem_pages"`
}

// Compilation controls module discovery and parsing.
type Compilation struct {
	EntryPoint string   `toml:"entry_point" yaml:"entry_point"` // Module path of the entry module
	Include    []string `toml:"include" yaml:"include"`         // Source directories
	Lib        []string `toml:"lib" yaml:"lib"`                 // Library directories
	Dialect    string   `toml:"dialect" yaml:"dialect"`         // "comparison" or "flags"
}

// Default returns the configuration used when no project file exists.
func Default() *Config {
	return &Config{
		Compilation: Compilation{
			EntryPoint: "main",
			Include:    []string{"src"},
			Lib:        []string{"lib"},
			Dialect:    "comparison",
		},
	}
}

// SignalNames returns the configured signal names in sorted order.
func (c *Config) SignalNames() []string {
	names := make([]string, 0, len(c.Signals))
	for name := range c.Signals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads the project file from the root of fsys: FileName, or
// YAMLFileName when FileName is absent. With neither, Load returns Default.
func Load(fsys fs.FS) (*Config, error) {
	name, parse := FileName, Parse
	data, err := fs.ReadFile(fsys, FileName)
	if errors.Is(err, fs.ErrNotExist) {
		name, parse = YAMLFileName, ParseYAML
		data, err = fs.ReadFile(fsys, YAMLFileName)
	} else if _, serr := fs.Stat(fsys, YAMLFileName); serr == nil {
		return nil, fmt.Errorf("both %s and %s exist; keep one", FileName, YAMLFileName)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return cfg, nil
}

// Parse decodes and validates a TOML configuration document.
func Parse(data []byte) (*Config, error) {
	var doc map[string]any
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, fmt.Errorf("decode toml: %w", err)
	}
	if len(doc) == 0 {
		return nil, errors.New("empty configuration")
	}
	if err := validate(doc); err != nil {
		return nil, err
	}

	cfg := Default()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("decode toml: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown field %s", undecoded[0])
	}
	return cfg, nil
}

// ParseYAML decodes and validates a YAML configuration document.
func ParseYAML(data []byte) (*Config, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if doc == nil {
		return nil, errors.New("empty configuration")
	}
	if err := validate(doc); err != nil {
		return nil, err
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

// validate checks a decoded document against the schema. The document is
// passed through JSON so the validator sees JSON types only.
func validate(doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("configuration is not representable as JSON: %w", err)
	}
	// jsonschema/v5 expects instances decoded with UseNumber.
	var inst any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&inst); err != nil {
		return fmt.Errorf("configuration is not representable as JSON: %w", err)
	}

	schema, err := compileSchema()
	if err != nil {
		return fmt.Errorf("schema compilation failed: %w", err)
	}
	if err := schema.Validate(inst); err != nil {
		return convertValidationError(err)
	}
	return nil
}

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true
	if compiler.Formats == nil {
		compiler.Formats = make(map[string]func(interface{}) bool)
	}
	compiler.Formats["semver"] = isSemver

	// The schema is embedded; nothing is ever loaded from elsewhere.
	compiler.LoadURL = func(url string) (io.ReadCloser, error) {
		return nil, fmt.Errorf("$ref to %s not allowed", url)
	}

	if err := compiler.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile(schemaURL)
}

// isSemver accepts versions with or without the leading "v".
func isSemver(v any) bool {
	s, ok := v.(string)
	if !ok {
		return true // Type validation happens separately
	}
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	return semver.IsValid(s)
}

// ValidationError lists every schema violation of a configuration document.
type ValidationError struct {
	Problems []string // "<location>: <message>", document order
}

func (e *ValidationError) Error() string {
	return "invalid configuration:\n  " + strings.Join(e.Problems, "\n  ")
}

// convertValidationError flattens the schema error tree into its leaves.
func convertValidationError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	out := &ValidationError{}
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out.Problems = append(out.Problems, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}
