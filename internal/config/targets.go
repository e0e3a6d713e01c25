package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Target is one saved backend preset from the targets file. Passwords read
// from the file are encrypted before they reach the database; they are never
// stored in plain text.
type Target struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// TargetsFile is the on-disk shape of the targets/allowlist document.
type TargetsFile struct {
	AllowedHosts []string `yaml:"allowed_hosts"`
	Targets      []Target `yaml:"targets"`
}

// LoadTargets parses the YAML targets file. A missing path is not an error;
// it returns an empty document.
func LoadTargets(path string) (*TargetsFile, error) {
	if path == "" {
		return &TargetsFile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &TargetsFile{}, nil
		}
		return nil, fmt.Errorf("read targets file: %w", err)
	}

	var tf TargetsFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse targets file: %w", err)
	}
	for i := range tf.Targets {
		if tf.Targets[i].Name == "" {
			return nil, fmt.Errorf("targets file: entry %d has no name", i)
		}
		if tf.Targets[i].Host == "" {
			return nil, fmt.Errorf("target %q has no host", tf.Targets[i].Name)
		}
		if tf.Targets[i].Port == 0 {
			tf.Targets[i].Port = 22
		}
	}
	return &tf, nil
}
