package transfer

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BatchEntry is one line of a batch download list.
type BatchEntry struct {
	OutputPath string `yaml:"op"`
	URL        string `yaml:"link"`
}

// LoadBatchFile reads a YAML list of downloads.
func LoadBatchFile(filePath string) ([]BatchEntry, error) {
	log := GetLogger("batch")
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading YAML file: %v", err)
	}
	var entries []BatchEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("error parsing YAML file: %v", err)
	}
	for i, entry := range entries {
		if entry.URL == "" {
			return nil, fmt.Errorf("missing URL for entry %d", i+1)
		}
		if entry.OutputPath == "" {
			return nil, fmt.Errorf("missing output path for entry %d", i+1)
		}
	}
	log.Debug().Int("count", len(entries)).Msg("Entries loaded from YAML")
	return entries, nil
}

// CleanParts removes part files a crashed chunked download may have left next
// to destPath.
func CleanParts(destPath string) error {
	matches, err := filepath.Glob(destPath + ".part*")
	if err != nil {
		return err
	}
	for _, match := range matches {
		if err := os.Remove(match); err != nil {
			return err
		}
	}
	return nil
}
