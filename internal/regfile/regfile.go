// Package regfile decodes the YAML or JSON registry files that declare
// quote sources and event publishers.
package regfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type decoder struct {
	format string
	exts   []string
	fn     func([]byte, any) error
}

var decoders = []decoder{
	{format: "yaml", exts: []string{".yaml", ".yml"}, fn: yaml.Unmarshal},
	{format: "json", exts: []string{".json"}, fn: json.Unmarshal},
}

// Read loads path and decodes it into out, choosing the format from the file
// extension. kind names the registry in error messages.
func Read(path, kind string, out any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("%s file path is empty", kind)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s file: %w", kind, err)
	}
	return Decode(raw, filepath.Ext(path), kind, out)
}

// Decode decodes raw into out. An empty or unknown ext tries YAML then JSON.
func Decode(raw []byte, ext, kind string, out any) error {
	ext = strings.ToLower(strings.TrimSpace(ext))
	candidates := decoders
	for _, d := range decoders {
		for _, e := range d.exts {
			if e == ext {
				candidates = []decoder{d}
			}
		}
	}

	var errs []error
	for _, d := range candidates {
		if err := d.fn(raw, out); err != nil {
			errs = append(errs, fmt.Errorf("decode %s %s: %w", d.format, kind, err))
			continue
		}
		return nil
	}
	return fmt.Errorf("%s file format not recognized (expected YAML or JSON): %w", kind, errors.Join(errs...))
}
