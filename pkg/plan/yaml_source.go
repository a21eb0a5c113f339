package plan

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLSource loads plans from a YAML document of the shape:
//
//	plans:
//	  - id: MONTHLY_PLAN
//	    name: Monthly
//	    amount: 15999
//	    currency: NGN
//	    interval: monthly
//	    trial_days: 7
type YAMLSource struct {
	Path string
}

// NewYAMLSource returns a source reading the given file on every Load.
func NewYAMLSource(path string) YAMLSource {
	return YAMLSource{Path: path}
}

func (s YAMLSource) Load(ctx context.Context) ([]Plan, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open plan catalog %s: %w", s.Path, err)
	}
	defer f.Close()

	return ParseYAML(f)
}

// ParseYAML decodes a plan catalog from a reader.
func ParseYAML(r io.Reader) ([]Plan, error) {
	var doc struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode plan catalog: %w", err)
	}
	return doc.Plans, nil
}
