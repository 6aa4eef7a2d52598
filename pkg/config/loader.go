package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/gridci/gridci/pkg/matrix"
)

// Loader reads matrix declarations from disk and finalizes them into
// validated, immutable configurations.
type Loader struct {
	validate  *validator.Validate
	generator *StarlarkGenerator
	cue       *CUELoader
	logger    zerolog.Logger
}

// NewLoader creates a loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		validate:  validator.New(),
		generator: NewStarlarkGenerator(0),
		cue:       NewCUELoader(),
		logger:    logger.With().Str("component", "config").Logger(),
	}
}

// Load reads, parses, and finalizes the matrix declaration at path. The file
// format is chosen by extension: .cue is evaluated as CUE, everything else is
// parsed as YAML.
//
// Configuration errors surface here, before any job runs; a config that loads
// without error expands and executes without further declaration checks.
func (l *Loader) Load(path string) (*MatrixConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, matrix.NewConfigurationError(
			fmt.Sprintf("reading %s", path), err)
	}

	var cfg MatrixConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		if err := l.cue.Decode(path, data, &cfg); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, matrix.NewConfigurationError(
				fmt.Sprintf("parsing %s", path), err)
		}
	}

	if err := l.Finalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Finalize runs the optional Starlark generator, then validates the complete
// declaration. Exposed separately so tests and callers with synthetic configs
// go through the same checks as file loading.
func (l *Loader) Finalize(cfg *MatrixConfig) error {
	if cfg.Generate != "" {
		generated, err := l.generator.Generate(cfg.Generate)
		if err != nil {
			return err
		}
		cfg.Axes = append(cfg.Axes, generated.Axes...)
		cfg.Exclude = append(cfg.Exclude, generated.Exclude...)
		cfg.AllowFailures = append(cfg.AllowFailures, generated.AllowFailures...)
		l.logger.Debug().
			Int("axes", len(generated.Axes)).
			Int("exclude", len(generated.Exclude)).
			Msg("applied starlark generator")
	}

	if err := l.validate.Struct(cfg); err != nil {
		return matrix.NewConfigurationError("matrix declaration invalid", err).
			WithCode(matrix.ErrCodeValidation)
	}

	return l.checkSemantics(cfg)
}

// checkSemantics enforces the declaration invariants that struct tags cannot
// express.
func (l *Loader) checkSemantics(cfg *MatrixConfig) error {
	axisNames := make(map[string]struct{}, len(cfg.Axes))
	for _, axis := range cfg.Axes {
		if _, dup := axisNames[axis.Name]; dup {
			return matrix.NewConfigurationError(
				fmt.Sprintf("duplicate axis name %q", axis.Name), nil).
				WithCode(matrix.ErrCodeDuplicateAxis)
		}
		axisNames[axis.Name] = struct{}{}
	}

	if _, err := cfg.Runner.JobTimeout(); err != nil {
		return matrix.NewConfigurationError("invalid runner timeout", err).
			WithCode(matrix.ErrCodeValidation)
	}

	for i, cmd := range cfg.Install {
		if err := checkPlaceholders(cmd, fmt.Sprintf("install[%d]", i), axisNames); err != nil {
			return err
		}
	}
	if err := checkPlaceholders(cfg.Script, "script", axisNames); err != nil {
		return err
	}
	for key, value := range cfg.Env {
		if err := checkPlaceholders(value, "env."+key, axisNames); err != nil {
			return err
		}
	}

	// A rule naming an unknown axis matches nothing. Legal, but almost
	// always a typo, so it is worth a warning.
	for _, rule := range append(cfg.ExcludeRules(), cfg.AllowFailureRules()...) {
		for axis := range rule {
			if _, ok := axisNames[axis]; !ok {
				l.logger.Warn().
					Str("axis", axis).
					Str("rule", rule.String()).
					Msg("rule references an axis not declared in the matrix; it will never match")
			}
		}
	}

	return nil
}
