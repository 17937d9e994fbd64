package shell

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/friedman-econ/friedman/internal/command"
	"github.com/friedman-econ/friedman/internal/dataset"
	"github.com/friedman-econ/friedman/internal/engine"
)

// DefaultPreviewRows is used when a preview asks for no specific row count.
const DefaultPreviewRows = 100

// LoadDataset registers the file at path: spreadsheets are imported through
// the engine, everything else is read as CSV. sheet is ignored for CSV.
func (s *Service) LoadDataset(ctx context.Context, path, sheet string) (dataset.Info, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return dataset.Info{}, engine.InvalidParams("path is required")
	}
	if dataset.IsSpreadsheet(path) {
		return s.LoadXLSX(ctx, path, sheet)
	}
	return s.LoadCSV(path)
}

// LoadCSV reads the header and row count of a CSV file and registers it.
func (s *Service) LoadCSV(path string) (dataset.Info, error) {
	info, err := dataset.ReadCSV(path)
	if err != nil {
		return dataset.Info{}, err
	}
	info = s.datasets.Add(info)
	s.log.Info("dataset loaded", map[string]any{
		"dataset_id": info.ID,
		"name":       info.Name,
		"columns":    len(info.Columns),
		"rows":       info.RowCount,
	})
	return info, nil
}

// LoadXLSX asks the engine to import a spreadsheet and registers the
// columns and row count it reports. An empty sheet selects the first one.
func (s *Service) LoadXLSX(ctx context.Context, path, sheet string) (dataset.Info, error) {
	params := command.Params{}
	params.Set("path", path)
	if sheet != "" {
		params.Set("sheet", sheet)
	}
	res, err := s.Invoke(ctx, Request{Operation: "data.import", Params: params})
	if err != nil {
		return dataset.Info{}, err
	}

	var summary struct {
		Columns  []string `json:"columns"`
		RowCount *int     `json:"row_count"`
	}
	if err := json.Unmarshal(res.Output, &summary); err != nil || summary.Columns == nil || summary.RowCount == nil {
		return dataset.Info{}, &engine.Error{
			Kind:    engine.KindMalformedOutput,
			Message: "data import did not report columns and row_count",
			Stdout:  string(res.Output),
			Err:     err,
		}
	}

	info := s.datasets.Add(dataset.Info{
		Name:     filepath.Base(path),
		Path:     path,
		Columns:  summary.Columns,
		RowCount: *summary.RowCount,
	})
	s.log.Info("dataset imported", map[string]any{
		"dataset_id": info.ID,
		"name":       info.Name,
		"columns":    len(info.Columns),
		"rows":       info.RowCount,
	})
	return info, nil
}

// Dataset returns a registered dataset.
func (s *Service) Dataset(id string) (dataset.Info, error) {
	return s.datasets.Get(id)
}

// ListDatasets returns all registered datasets in load order.
func (s *Service) ListDatasets() []dataset.Info {
	return s.datasets.List()
}

// PreviewDataset asks the engine for the first rows of a registered dataset.
func (s *Service) PreviewDataset(ctx context.Context, id string, rows int) (json.RawMessage, error) {
	info, err := s.datasets.Get(id)
	if err != nil {
		return nil, err
	}
	if rows <= 0 {
		rows = DefaultPreviewRows
	}
	params := command.Params{}
	params.Set("path", info.Path)
	params.Set("rows", rows)
	res, err := s.Invoke(ctx, Request{Operation: "data.preview", Params: params})
	if err != nil {
		return nil, err
	}
	return res.Output, nil
}
