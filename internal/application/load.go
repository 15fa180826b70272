package application

import (
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/vk/metalus/internal/errs"
	"gopkg.in/yaml.v3"
)

// Loader names supported application formats.
const (
	LoaderJSON = "json"
	LoaderYAML = "yaml"
	LoaderHCL  = "hcl"
)

// ParseJSON decodes an application from JSON.
func ParseJSON(data []byte) (*Application, error) {
	var app Application
	if err := json.Unmarshal(data, &app); err != nil {
		return nil, errs.WrapConfigError(err, "cannot parse application JSON")
	}
	return &app, nil
}

// ParseYAML decodes an application from YAML by bridging through the
// JSON model.
func ParseYAML(data []byte) (*Application, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, errs.WrapConfigError(err, "cannot parse application YAML")
	}
	buf, err := json.Marshal(tree)
	if err != nil {
		return nil, errs.WrapConfigError(err, "cannot normalize application YAML")
	}
	return ParseJSON(buf)
}

// Parse decodes an application with the named loader.
func Parse(loader string, filename string, data []byte) (*Application, error) {
	switch loader {
	case LoaderJSON:
		return ParseJSON(data)
	case LoaderYAML:
		return ParseYAML(data)
	case LoaderHCL:
		return ParseHCL(filename, data)
	}
	return nil, errs.NewConfigError("unknown application loader %q", loader)
}

// LoaderForPath derives the loader from a file extension, defaulting to
// JSON.
func LoaderForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoaderYAML
	case ".hcl":
		return LoaderHCL
	}
	return LoaderJSON
}

// LoadFile reads and parses an application file, deriving the loader
// from the extension unless one is forced.
func LoadFile(path, loader string) (*Application, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.WrapConfigError(err, "cannot read application file %s", path)
	}
	if loader == "" {
		loader = LoaderForPath(path)
	}
	return Parse(loader, filepath.Base(path), data)
}

// JSON serializes the parsed application back to JSON. Together with
// ParseJSON this round-trips losslessly. ParseJSON keeps any reserved
// driver keys found in globals; Build deletes them from the model's
// globals.
func (a *Application) JSON() ([]byte, error) {
	return json.Marshal(a)
}
