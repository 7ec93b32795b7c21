package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/timetable-api/internal/scheduler"
)

// dataset is the on-disk entity file. Constraints are optional and are
// overridden by command-line flags.
type dataset struct {
	scheduler.Input `yaml:",inline"`
	Constraints     scheduler.Constraints `json:"constraints" yaml:"constraints"`
}

// UnmarshalJSON flattens the embedded input the way the YAML inline tag does.
func (d *dataset) UnmarshalJSON(data []byte) error {
	var in scheduler.Input
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	var extra struct {
		Constraints scheduler.Constraints `json:"constraints"`
	}
	if err := json.Unmarshal(data, &extra); err != nil {
		return err
	}
	d.Input, d.Constraints = in, extra.Constraints
	return nil
}

func loadDataset(path string) (*dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer file.Close() //nolint:errcheck
	return decodeDataset(file, filepath.Ext(path))
}

// decodeDataset reads JSON for a ".json" extension and YAML otherwise.
func decodeDataset(r io.Reader, ext string) (*dataset, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var d dataset
	if strings.EqualFold(ext, ".json") {
		dec := json.NewDecoder(bytes.NewReader(raw))
		if err := dec.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode json dataset: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode yaml dataset: %w", err)
		}
	}
	if err := scheduler.ValidateInput(d.Input); err != nil {
		return nil, err
	}
	return &d, nil
}
