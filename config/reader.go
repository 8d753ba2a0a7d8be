package config

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Read reads a config from the given file. Environment variables in the file are expanded before
// parsing. Files ending in .yaml or .yml are parsed as YAML, everything else as JSON. Fields absent
// from the file keep their Default values.
func Read(filePath string) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config file %q", filePath)
	}
	format := FormatJSON
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		format = FormatYAML
	}
	return FromReader(bytes.NewReader(buf), format)
}

// Format is a config file encoding.
type Format int

// Supported config file encodings.
const (
	FormatJSON Format = iota
	FormatYAML
)

// FromReader reads and validates a config in the given format.
func FromReader(r io.Reader, format Format) (*Config, error) {
	cfg := withoutCameras()
	var err error
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		err = dec.Decode(cfg)
	default:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		err = dec.Decode(cfg)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "cannot parse config")
	}
	return finish(cfg)
}

// withoutCameras returns the defaults minus the camera list, so a configured list replaces the
// default one instead of being merged into it element by element.
func withoutCameras() *Config {
	cfg := Default()
	cfg.Vision.Cameras = nil
	return cfg
}

func finish(cfg *Config) (*Config, error) {
	if cfg.Vision.Cameras == nil {
		cfg.Vision.Cameras = Default().Vision.Cameras
	}
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromAttributes decodes a loosely typed attribute map, as handed over by a host robot
// configuration, on top of the defaults. Numeric strings are accepted for numbers.
func FromAttributes(attributes map[string]interface{}) (*Config, error) {
	cfg := withoutCameras()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrap(err, "cannot decode attributes")
	}
	return finish(cfg)
}
