package extract

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile holds the keyword dictionaries the matchers run against. Pattern
// slices are ordered: earlier entries win ties, and issue categories are
// emitted in the order they appear here, which fixes the serialization
// order of the observed_issues list.
type Profile struct {
	Crops     []string          `yaml:"crops"`
	Stages    []StagePattern    `yaml:"stages"`
	Issues    []IssuePattern    `yaml:"issues"`
	Chemicals []ChemicalPattern `yaml:"chemicals"`
}

// StagePattern maps growth-stage keywords to a stage name.
type StagePattern struct {
	Stage    string   `yaml:"stage"`
	Keywords []string `yaml:"keywords"`
}

// IssuePattern maps issue keywords to a fixed category.
type IssuePattern struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// ChemicalPattern maps treatment keywords to a chemical name.
type ChemicalPattern struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// DefaultProfile returns the built-in English dictionaries.
func DefaultProfile() *Profile {
	return &Profile{
		Crops: []string{"rice", "wheat", "corn", "cotton", "sugarcane", "pulse", "lentil", "maize"},
		Stages: []StagePattern{
			{Stage: "seedling", Keywords: []string{"seedling", "planting"}},
			{Stage: "growth", Keywords: []string{"growth", "growing"}},
			{Stage: "flowering", Keywords: []string{"flowering", "bloom"}},
			{Stage: "fruiting", Keywords: []string{"fruit", "fruiting"}},
			{Stage: "harvest", Keywords: []string{"harvest", "ripe"}},
		},
		Issues: []IssuePattern{
			{Category: "pest", Keywords: []string{"pest", "insect", "bug", "worm"}},
			{Category: "disease", Keywords: []string{"disease", "blight", "fungal", "rot"}},
			{Category: "drought", Keywords: []string{"drought", "dry"}},
			{Category: "flooding", Keywords: []string{"flood", "waterlogged", "excess water"}},
			{Category: "weed", Keywords: []string{"weed", "unwanted grass"}},
		},
		Chemicals: []ChemicalPattern{
			{Name: "neem oil", Keywords: []string{"neem"}},
			{Name: "insecticide", Keywords: []string{"insecticide", "spray"}},
			{Name: "fungicide", Keywords: []string{"fungicide", "powder"}},
			{Name: "fertilizer", Keywords: []string{"fertilizer", "urea", "npk"}},
		},
	}
}

// LoadProfile reads a YAML keyword profile. Sections left empty in the file
// fall back to the built-in dictionaries, so a regional profile only needs
// to override what differs.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}

	def := DefaultProfile()
	if len(p.Crops) == 0 {
		p.Crops = def.Crops
	}
	if len(p.Stages) == 0 {
		p.Stages = def.Stages
	}
	if len(p.Issues) == 0 {
		p.Issues = def.Issues
	}
	if len(p.Chemicals) == 0 {
		p.Chemicals = def.Chemicals
	}
	return &p, nil
}
