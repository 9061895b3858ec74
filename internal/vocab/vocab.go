// Package vocab corrects recurring transcription mistakes before the text
// reaches trigger detection and enhancement.
//
// Two mechanisms run in one pass over the transcript:
//
//  1. Exact replacements: a spoken-form → written-form table ("my sequel"
//     → "MySQL"), matched case-insensitively on word boundaries, longest
//     phrase first.
//
//  2. Phonetic correction: words the speech engine almost got right are
//     snapped to user-supplied terms. A candidate term must share a
//     Double Metaphone code with the spoken word and score at least the
//     similarity threshold under Jaro-Winkler.
//
// Vocabularies are plain YAML files in a directory, so users can keep one
// file per project or topic:
//
//	terms:
//	  - Kubernetes
//	  - JetBrains
//	replacements:
//	  my sequel: MySQL
//	  jay son: JSON
package vocab

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Vocabulary is the merged content of all vocabulary files.
type Vocabulary struct {
	// Terms are the words and phrases the corrector may snap near-misses
	// to. The written form is used verbatim in the output.
	Terms []string

	// Replacements maps normalized spoken forms (lowercase, single
	// spaces) to their written forms.
	Replacements map[string]string
}

// vocabFile is the on-disk YAML shape of one vocabulary file.
type vocabFile struct {
	Terms        []string          `yaml:"terms"`
	Replacements map[string]string `yaml:"replacements"`
}

// LoadDir reads every .yaml/.yml file in dir and merges them into one
// Vocabulary. A missing directory is not an error: it yields an empty
// vocabulary and the corrector becomes a no-op. Files are merged in
// directory order; on duplicate replacement keys the later file wins.
func LoadDir(dir string) (*Vocabulary, error) {
	v := &Vocabulary{Replacements: make(map[string]string)}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return v, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vocab: reading %s: %w", dir, err)
	}

	seen := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("vocab: reading %s: %w", path, err)
		}
		var f vocabFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("vocab: parsing %s: %w", path, err)
		}

		for _, term := range f.Terms {
			term = strings.TrimSpace(term)
			if term == "" {
				continue
			}
			key := strings.ToLower(term)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			v.Terms = append(v.Terms, term)
		}
		for spoken, written := range f.Replacements {
			key := normalizeSpoken(spoken)
			if key == "" {
				return nil, fmt.Errorf("vocab: %s: empty replacement key", path)
			}
			v.Replacements[key] = written
		}
	}
	return v, nil
}

// Empty reports whether the vocabulary holds no terms and no replacements.
func (v *Vocabulary) Empty() bool {
	return v == nil || (len(v.Terms) == 0 && len(v.Replacements) == 0)
}

// normalizeSpoken lowercases a spoken form and collapses its internal
// whitespace, matching how transcript phrases are keyed.
func normalizeSpoken(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
