package config

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// JobSeed is one crawl job definition, read from a yaml file in JobsDir.
// Seeds are upserted by name at startup so edits take effect on restart.
type JobSeed struct {
	Name                string   `yaml:"name"`
	Frequency           string   `yaml:"frequency"`
	Active              bool     `yaml:"active"`
	MinOpportunityScore float64  `yaml:"min_opportunity_score"`
	LocationCity        string   `yaml:"location_city"`
	LocationArea        string   `yaml:"location_area"`
	Pincode             string   `yaml:"pincode"`
	BusinessCategory    string   `yaml:"business_category"`
	Monitor             []string `yaml:"monitor"`
}

// BusinessSeed describes a directory entry to register before any crawl
// has discovered it. One yaml file may carry several.
type BusinessSeed struct {
	Name              string `yaml:"business_name"`
	Category          string `yaml:"category"`
	City              string `yaml:"city"`
	Area              string `yaml:"area"`
	State             string `yaml:"state"`
	Pincode           string `yaml:"pincode"`
	InstagramUsername string `yaml:"instagram_username"`
}

type businessSeedFile struct {
	Businesses []BusinessSeed `yaml:"businesses"`
}

// LoadJobSeeds reads every yaml file in dir as a single JobSeed. A missing
// directory is not an error; malformed files are skipped with a warning so
// one bad seed cannot keep the daemon down.
func LoadJobSeeds(dir string) ([]JobSeed, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var seeds []JobSeed
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			log.Printf("Warning: failed to read job seed %s: %v", entry.Name(), err)
			continue
		}
		var seed JobSeed
		if err := yaml.Unmarshal(data, &seed); err != nil {
			log.Printf("Warning: failed to parse job seed %s: %v", entry.Name(), err)
			continue
		}
		if seed.Name == "" {
			log.Printf("Warning: job seed %s has no name, skipping", entry.Name())
			continue
		}
		if seed.MinOpportunityScore == 0 {
			seed.MinOpportunityScore = 5.0
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}

// LoadBusinessSeeds reads every yaml file in dir; each file holds a
// businesses list. Same tolerance rules as LoadJobSeeds.
func LoadBusinessSeeds(dir string) ([]BusinessSeed, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var seeds []BusinessSeed
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			log.Printf("Warning: failed to read business seeds %s: %v", entry.Name(), err)
			continue
		}
		var file businessSeedFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			log.Printf("Warning: failed to parse business seeds %s: %v", entry.Name(), err)
			continue
		}
		for _, seed := range file.Businesses {
			if seed.Name == "" {
				continue
			}
			seeds = append(seeds, seed)
		}
	}
	return seeds, nil
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
