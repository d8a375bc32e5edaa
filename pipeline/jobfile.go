package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadJob reads a job description. Files ending in .yaml or .yml are parsed
// as YAML, everything else as JSON.
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}

	var job Job
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &job)
	default:
		err = json.Unmarshal(data, &job)
	}
	if err != nil {
		return nil, fmt.Errorf("parse job file %s: %w", path, err)
	}

	if job.Thread.ID == "" {
		return nil, fmt.Errorf("job file %s: thread.id is required", path)
	}
	if job.Length < 0 {
		return nil, fmt.Errorf("job file %s: length must not be negative", path)
	}
	return &job, nil
}
