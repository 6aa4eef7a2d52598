package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/gridci/gridci/pkg/matrix"
)

const sampleYAML = `
name: wafer-ci
axes:
  - name: python
    values: ["2.7", "3.4", "3.5"]
  - name: db
    values: ["sqlite", "postgres"]
exclude:
  - python: "2.7"
    db: "postgres"
allow_failures:
  - python: "3.5"
    db: "postgres"
env:
  DB_BACKEND: "${db}"
install:
  - pip install Django
  - pip install -r requirements-${db}.txt
script: python manage.py test
runner:
  parallel: 2
  timeout: 30m
`

const sampleCUE = `
name: "wafer-ci"
axes: [
	{name: "python", values: ["2.7", "3.4", "3.5"]},
	{name: "db", values: ["sqlite", "postgres"]},
]
exclude: [{python: "2.7", db: "postgres"}]
allow_failures: [{python: "3.5", db: "postgres"}]
env: {DB_BACKEND: "${db}"}
install: [
	"pip install Django",
	"pip install -r requirements-${db}.txt",
]
script: "python manage.py test"
runner: {parallel: 2, timeout: "30m"}
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func newTestLoader() *Loader {
	return NewLoader(zerolog.Nop())
}

func TestLoadYAML(t *testing.T) {
	cfg, err := newTestLoader().Load(writeConfig(t, "matrix.yaml", sampleYAML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Name != "wafer-ci" {
		t.Errorf("unexpected name %q", cfg.Name)
	}
	if len(cfg.Axes) != 2 || cfg.Axes[0].Name != "python" || cfg.Axes[1].Name != "db" {
		t.Errorf("axes not preserved in declaration order: %+v", cfg.Axes)
	}
	if len(cfg.Commands()) != 3 {
		t.Errorf("expected install+script = 3 commands, got %d", len(cfg.Commands()))
	}
	if timeout, err := cfg.Runner.JobTimeout(); err != nil || timeout.Minutes() != 30 {
		t.Errorf("unexpected timeout %v err %v", timeout, err)
	}
}

func TestLoadCUEMatchesYAML(t *testing.T) {
	loader := newTestLoader()

	fromYAML, err := loader.Load(writeConfig(t, "matrix.yaml", sampleYAML))
	if err != nil {
		t.Fatalf("YAML load failed: %v", err)
	}
	fromCUE, err := loader.Load(writeConfig(t, "matrix.cue", sampleCUE))
	if err != nil {
		t.Fatalf("CUE load failed: %v", err)
	}

	if !reflect.DeepEqual(fromYAML, fromCUE) {
		t.Errorf("YAML and CUE loaders disagree:\nyaml: %+v\ncue:  %+v", fromYAML, fromCUE)
	}
}

func TestLoadRejectsMissingScript(t *testing.T) {
	content := `
name: broken
axes:
  - name: python
    values: ["3.5"]
`
	_, err := newTestLoader().Load(writeConfig(t, "matrix.yaml", content))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !matrix.IsConfiguration(err) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestLoadRejectsEmptyAxisValues(t *testing.T) {
	content := `
name: broken
axes:
  - name: python
    values: []
script: "true"
`
	_, err := newTestLoader().Load(writeConfig(t, "matrix.yaml", content))
	if err == nil || !matrix.IsConfiguration(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLoadRejectsDuplicateAxes(t *testing.T) {
	content := `
name: broken
axes:
  - name: python
    values: ["2.7"]
  - name: python
    values: ["3.5"]
script: "true"
`
	_, err := newTestLoader().Load(writeConfig(t, "matrix.yaml", content))
	if err == nil || !matrix.IsConfiguration(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLoadRejectsUnknownPlaceholder(t *testing.T) {
	content := `
name: broken
axes:
  - name: python
    values: ["3.5"]
script: "run --compiler=${compiler}"
`
	_, err := newTestLoader().Load(writeConfig(t, "matrix.yaml", content))
	if err == nil {
		t.Fatal("expected template error")
	}
	var me *matrix.Error
	if !errors.As(err, &me) || me.Code != matrix.ErrCodeTemplate {
		t.Errorf("expected template error code, got %v", err)
	}
}

func TestLoadRejectsBadTimeout(t *testing.T) {
	content := `
name: broken
axes:
  - name: python
    values: ["3.5"]
script: "true"
runner:
  timeout: "soon"
`
	_, err := newTestLoader().Load(writeConfig(t, "matrix.yaml", content))
	if err == nil || !matrix.IsConfiguration(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLoadStarlarkGenerator(t *testing.T) {
	content := `
name: generated
axes:
  - name: db
    values: ["sqlite"]
script: "test ${python} ${db}"
generate: |
  versions = ["3." + str(minor) for minor in [4, 5]]
  axes = [{"name": "python", "values": ["2.7"] + versions}]
  allow_failures = [{"python": "3.5"}]
`
	cfg, err := newTestLoader().Load(writeConfig(t, "matrix.yaml", content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Axes) != 2 {
		t.Fatalf("expected generated axis appended, got %+v", cfg.Axes)
	}
	gen := cfg.Axes[1]
	if gen.Name != "python" || !reflect.DeepEqual(gen.Values, []string{"2.7", "3.4", "3.5"}) {
		t.Errorf("unexpected generated axis: %+v", gen)
	}
	if len(cfg.AllowFailures) != 1 || cfg.AllowFailures[0]["python"] != "3.5" {
		t.Errorf("unexpected generated allow_failures: %+v", cfg.AllowFailures)
	}

	jobs, err := matrix.Expand(cfg.ToAxes())
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(jobs) != 3 {
		t.Errorf("expected 3 jobs from generated matrix, got %d", len(jobs))
	}
}

func TestLoadStarlarkGeneratorFailure(t *testing.T) {
	content := `
name: generated
axes:
  - name: db
    values: ["sqlite"]
script: "true"
generate: |
  axes = "not-a-list"
`
	_, err := newTestLoader().Load(writeConfig(t, "matrix.yaml", content))
	if err == nil || !matrix.IsConfiguration(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestExpandTemplate(t *testing.T) {
	job := matrix.Job{
		Assignments: map[string]string{"python": "3.5", "db": "postgres"},
		AxisOrder:   []string{"python", "db"},
	}

	got := ExpandTemplate("pip install -r requirements-${db}.txt # py ${python}", job)
	want := "pip install -r requirements-postgres.txt # py 3.5"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
