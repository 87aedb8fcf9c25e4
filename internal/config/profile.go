package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile is an optional YAML file that pins the training parameters of a
// deployment. Environment variables still override any value set here.
//
//	mode: service
//	epochs: 3
//	samples: 0
//	archive_key: windows.tar.gz
//	buckets:
//	  training: training-logs
//	  models: nulog-models
type Profile struct {
	Mode       string         `yaml:"mode"`
	Epochs     int            `yaml:"epochs"`
	Samples    *int           `yaml:"samples"`
	ArchiveKey string         `yaml:"archive_key"`
	Buckets    ProfileBuckets `yaml:"buckets"`
}

// ProfileBuckets names the dataset and models buckets.
type ProfileBuckets struct {
	Training string `yaml:"training"`
	Models   string `yaml:"models"`
}

// LoadProfile reads a profile from path. An empty path yields an empty profile.
func LoadProfile(path string) (*Profile, error) {
	p := &Profile{}
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read training profile: %w", err)
	}

	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse training profile %s: %w", path, err)
	}
	return p, nil
}
