package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a job manifest from path. See LoadFromBytes.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("manifest file not found: %s", path)
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("permission denied reading manifest: %s", path)
	case err != nil:
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromReader reads r to the end and loads it as a manifest. path is
// only used for format detection and error messages.
func LoadFromReader(r io.Reader, path string) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromBytes decodes, validates and defaults a manifest.
//
// The document is normalized to JSON first and checked against the
// embedded schema, so unknown properties are rejected before the typed
// decode. A .json path is read as JSON and .yaml/.yml as YAML; any other
// extension tries YAML and then JSON.
func LoadFromBytes(data []byte, path string) (*Manifest, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("manifest file is empty")
	}

	doc, err := normalize(data, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, err
	}
	if err := ValidateRaw(doc); err != nil {
		return nil, err
	}

	m := &Manifest{}
	if err := json.Unmarshal(doc, m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	m.ApplyDefaults()
	if err := checkSemantics(m); err != nil {
		return nil, err
	}
	return m, nil
}

// normalize returns data as a JSON document.
func normalize(data []byte, ext string) ([]byte, error) {
	switch ext {
	case ".json":
		if !json.Valid(data) {
			var probe any
			return nil, fmt.Errorf("invalid JSON in manifest: %w", json.Unmarshal(data, &probe))
		}
		return data, nil
	case ".yaml", ".yml":
		return fromYAML(data)
	}

	doc, yamlErr := fromYAML(data)
	if yamlErr == nil {
		return doc, nil
	}
	if json.Valid(data) {
		return data, nil
	}
	return nil, fmt.Errorf("failed to parse manifest (tried YAML and JSON): %w", yamlErr)
}

func fromYAML(data []byte) ([]byte, error) {
	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("invalid YAML in manifest: %w", err)
	}
	doc, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("manifest is not representable as JSON: %w", err)
	}
	return doc, nil
}
