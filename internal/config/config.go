// Package config loads and validates environment configuration. Variants
// (dev, prod) are CUE files unified against an embedded schema, so invalid
// or incomplete configuration is rejected before any composition happens.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaSource string

// Environment describes one deployable environment variant.
type Environment struct {
	Name     string   `json:"name"`
	Region   string   `json:"region"`
	CIDR     string   `json:"cidr"`
	Zones    []string `json:"zones"`
	Database Database `json:"database"`
	Job      Job      `json:"job"`
}

// Database configures the managed cluster in the isolated tier.
type Database struct {
	InstanceClass  string `json:"instanceClass"`
	Instances      int    `json:"instances"`
	EngineVersion  string `json:"engineVersion"`
	DatabaseName   string `json:"databaseName"`
	Username       string `json:"username"`
	PasswordLength int    `json:"passwordLength"`
}

// Job configures the managed batch job in the private tier.
type Job struct {
	Name           string  `json:"name"`
	ScriptLocation string  `json:"scriptLocation"`
	GlueVersion    string  `json:"glueVersion"`
	MaxCapacity    float64 `json:"maxCapacity"`
}

// InvalidConfigError means the configuration failed schema validation.
type InvalidConfigError struct {
	Err error
}

func (e InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid environment configuration: %v", e.Err)
}

func (e InvalidConfigError) Unwrap() error { return e.Err }

// Load reads and validates the environment CUE file at path.
func Load(path string) (Environment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Environment{}, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse validates the given CUE source against the embedded schema and
// decodes it. Defaults declared in the schema are applied.
func Parse(src []byte) (Environment, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if schema.Err() != nil {
		return Environment{}, fmt.Errorf("compiling embedded schema: %w", schema.Err())
	}
	def := schema.LookupPath(cue.ParsePath("#Environment"))
	if def.Err() != nil {
		return Environment{}, fmt.Errorf("looking up #Environment: %w", def.Err())
	}

	value := ctx.CompileBytes(src, cue.Filename("environment.cue"))
	if value.Err() != nil {
		return Environment{}, InvalidConfigError{Err: value.Err()}
	}

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return Environment{}, InvalidConfigError{Err: err}
	}

	var env Environment
	if err := unified.Decode(&env); err != nil {
		return Environment{}, InvalidConfigError{Err: err}
	}
	return env, nil
}
