package dataset

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/friedman-econ/friedman/internal/engine"
)

const maxCSVLine = 16 * 1024 * 1024

// ReadCSV reads the header and counts the data rows of a CSV file. The
// header is split on commas with whitespace and quotes trimmed from each
// name; every following line counts as a row.
func ReadCSV(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, engine.IOError("open "+path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxCSVLine)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return Info{}, engine.IOError("read "+path, err)
		}
		return Info{}, engine.InvalidParams("CSV file is empty: %s", path)
	}

	header := strings.TrimPrefix(scanner.Text(), "\ufeff")
	var columns []string
	for _, cell := range strings.Split(header, ",") {
		columns = append(columns, strings.Trim(cell, " \t\r\""))
	}

	rows := 0
	for scanner.Scan() {
		rows++
	}
	if err := scanner.Err(); err != nil {
		return Info{}, engine.IOError("read "+path, err)
	}

	return Info{
		Name:     filepath.Base(path),
		Path:     path,
		Columns:  columns,
		RowCount: rows,
	}, nil
}

// IsSpreadsheet reports whether path should be imported through the engine
// rather than read as CSV.
func IsSpreadsheet(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xls", ".xlsm":
		return true
	}
	return false
}
