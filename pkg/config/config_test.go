package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name  string `yaml:"name" toml:"name"`
	Port  int    `yaml:"port" toml:"port"`
	valid bool
}

func (s *sample) Validate() error {
	s.valid = true
	if s.Port == 0 {
		return errors.New("port required")
	}
	return nil
}

func write(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadYAMLExpandsEnv(t *testing.T) {
	t.Setenv("SCANVAULT_TEST_NAME", "vault")
	p := write(t, "c.yaml", "name: ${SCANVAULT_TEST_NAME}\nport: 8080\n")

	var s sample
	if err := Load(p, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "vault" || s.Port != 8080 || !s.valid {
		t.Errorf("got %+v", s)
	}
}

func TestLoadTOML(t *testing.T) {
	p := write(t, "c.toml", "name = \"mirror\"\nport = 9090\n")

	var s sample
	if err := Load(p, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "mirror" || s.Port != 9090 {
		t.Errorf("got %+v", s)
	}
}

func TestLoadValidationFails(t *testing.T) {
	p := write(t, "c.yaml", "name: x\n")
	var s sample
	if err := Load(p, &s); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	var s sample
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &s); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	def := write(t, "default.yaml", "port: 1\n")
	var s sample
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), def, &s); err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	if s.Port != 1 {
		t.Errorf("port = %d, want 1", s.Port)
	}

	s = sample{Port: 7}
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), "", &s); err != nil {
		t.Fatalf("LoadWithDefaults without file: %v", err)
	}
	if !s.valid || s.Port != 7 {
		t.Errorf("defaults not validated: %+v", s)
	}
}
