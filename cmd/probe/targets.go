package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type targetsFile struct {
	Services []string `yaml:"services"`
}

// loadTargets appends positional arguments to the services of an optional
// YAML file. Blank entries are dropped; repeated urls are kept, each one
// gets its own outcome.
func loadTargets(path string, args []string) ([]string, error) {
	var all []string
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read targets: %w", err)
		}
		var f targetsFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("parse targets %s: %w", path, err)
		}
		all = append(all, f.Services...)
	}
	all = append(all, args...)

	urls := make([]string, 0, len(all))
	for _, u := range all {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return nil, errors.New("no targets: pass -targets file.yaml or urls as arguments")
	}
	return urls, nil
}
