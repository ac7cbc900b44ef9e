package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration reads and writes Go duration strings such as "70ms".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration at line %d: %w", node.Line, err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration at line %d: %w", node.Line, err)
	}
	d.Duration = v
	return nil
}
