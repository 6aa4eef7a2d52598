package config

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/gridci/gridci/pkg/matrix"
)

// matrixSchema is the CUE schema every .cue matrix declaration is unified
// with before decoding. It mirrors the MatrixConfig struct shape.
const matrixSchema = `
#Axis: {
	name:   string & !=""
	values: [string, ...string]
}

#Rule: {[string]: string}

name: string & !=""
axes: [#Axis, ...#Axis]
exclude?: [...#Rule]
allow_failures?: [...#Rule]
env?: {[string]: string}
install?: [...string]
script: string & !=""
generate?: string
runner?: {
	parallel?: int & >=0
	shell?:    string
	timeout?:  string
}
remote?: {
	host:              string & !=""
	user:              string & !=""
	key_file?:         string
	known_hosts_file?: string
	work_dir?:         string
	upload?: [...string]
}
`

// CUELoader evaluates CUE matrix declarations against the embedded schema.
type CUELoader struct {
	ctx    *cue.Context
	schema cue.Value
}

// NewCUELoader creates a CUE loader with the compiled built-in schema.
func NewCUELoader() *CUELoader {
	ctx := cuecontext.New()
	return &CUELoader{
		ctx:    ctx,
		schema: ctx.CompileString(matrixSchema),
	}
}

// Decode evaluates the CUE source, unifies it with the matrix schema, and
// decodes the result into cfg.
func (l *CUELoader) Decode(path string, data []byte, cfg *MatrixConfig) error {
	if err := l.schema.Err(); err != nil {
		return matrix.NewConfigurationError("compiling matrix schema", err)
	}

	value := l.ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return matrix.NewConfigurationError(
			fmt.Sprintf("evaluating %s", path), err)
	}

	unified := l.schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return matrix.NewConfigurationError(
			fmt.Sprintf("%s does not conform to the matrix schema", path), err).
			WithCode(matrix.ErrCodeValidation)
	}

	if err := unified.Decode(cfg); err != nil {
		return matrix.NewConfigurationError(
			fmt.Sprintf("decoding %s", path), err)
	}
	return nil
}
