package drift

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/predictops/mlcp/pkg/errors"
	"github.com/predictops/mlcp/pkg/models"
)

// SaveReport appends a report to the JSON history file at path, creating the
// file and its parent directory on first use. Persisting reports is a caller
// convenience; detection itself never reads this file.
func SaveReport(report *models.DriftReport, path string) error {
	if report == nil {
		return errors.NewInvalidArgumentError("report is required")
	}
	if path == "" {
		return errors.NewInvalidArgumentError("history path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.NewStorageWriteError(
			fmt.Sprintf("failed to create history directory for %s", path), err)
	}

	reports, err := History(path)
	if err != nil && !errors.IsNotFound(err) {
		return err
	}
	reports = append(reports, *report)

	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return errors.NewStorageWriteError("failed to encode drift history", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.NewStorageWriteError(
			fmt.Sprintf("failed to write drift history %s", path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.NewStorageWriteError(
			fmt.Sprintf("failed to replace drift history %s", path), err)
	}
	return nil
}

// History loads all previously saved reports in append order. A missing file
// yields a NotFound error so callers can distinguish "no history yet" from a
// read failure.
func History(path string) ([]models.DriftReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError(fmt.Sprintf("no drift history at %s", path))
		}
		return nil, errors.NewStorageReadError(
			fmt.Sprintf("failed to read drift history %s", path), err)
	}

	var reports []models.DriftReport
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, errors.NewStorageReadError(
			fmt.Sprintf("failed to decode drift history %s", path), err)
	}
	return reports, nil
}
