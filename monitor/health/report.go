package health

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteReport replaces path with the unprocessed messages of every checked network.
func WriteReport(path string, results []*ChainHealth) error {
	report := make(map[string][]*UnprocessedMessage, len(results))
	for _, res := range results {
		report[res.Network] = res.Messages
	}
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("can't marshal report: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("can't create report file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err = f.Write(raw); err != nil {
		f.Close()
		return fmt.Errorf("can't write report file: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("can't close report file: %w", err)
	}
	if err = os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("can't replace report file: %w", err)
	}
	return nil
}
