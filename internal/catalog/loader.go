package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// LoadDir seeds the store from a directory of JSON test definitions, one test
// per *.json file. Used at startup in offline deployments where definitions
// ship on disk instead of being uploaded. Files that fail validation are
// skipped with a warning; a broken file must not take the service down.
func LoadDir(ctx context.Context, store Store, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read seed dir: %w", err)
	}
	loaded := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("seed file unreadable", "path", path, "error", err)
			continue
		}
		var t Test
		if err := json.Unmarshal(raw, &t); err != nil {
			slog.Warn("seed file is not a test definition", "path", path, "error", err)
			continue
		}
		if err := validateSeed(t); err != nil {
			slog.Warn("seed file rejected", "path", path, "error", err)
			continue
		}
		if err := store.PutTest(ctx, t); err != nil {
			return loaded, fmt.Errorf("seed %s: %w", e.Name(), err)
		}
		loaded++
	}
	return loaded, nil
}

func validateSeed(t Test) error {
	if t.ID == "" {
		return fmt.Errorf("missing id")
	}
	if t.DurationSeconds <= 0 {
		return fmt.Errorf("duration_seconds must be positive")
	}
	if len(t.Questions) == 0 {
		return fmt.Errorf("no questions")
	}
	for _, q := range t.Questions {
		if len(q.Choices) != NumChoices {
			return fmt.Errorf("question %d: needs exactly %d choices", q.Number, NumChoices)
		}
		if _, ok := q.Choices[q.CorrectAnswer]; !ok {
			return fmt.Errorf("question %d: correct_answer must index a choice", q.Number)
		}
	}
	return nil
}
