// Package deck provides the fixed, ordered template pool tokens are
// spawned from. The pool is static and loaded once from a YAML file.
package deck

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scrivano/boardsync/internal/models"
)

type deckFile struct {
	Templates []models.TemplateCard `yaml:"templates"`
}

// Load reads the template pool from a YAML file of the form:
//
//	templates:
//	  - id: m1
//	    front_image: cards/m1-front.jpg
//	    back_image: cards/m1-back.jpg
func Load(path string) ([]models.TemplateCard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deck file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a deck document.
func Parse(data []byte) ([]models.TemplateCard, error) {
	var f deckFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse deck file: %w", err)
	}
	if len(f.Templates) == 0 {
		return nil, fmt.Errorf("deck file has no templates")
	}

	seen := make(map[string]bool, len(f.Templates))
	for i, t := range f.Templates {
		if t.ID == "" {
			return nil, fmt.Errorf("template %d has no id", i)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("duplicate template id %q", t.ID)
		}
		seen[t.ID] = true
	}
	return f.Templates, nil
}
