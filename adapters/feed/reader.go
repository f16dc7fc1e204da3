package feed

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
)

// rawRow is one parsed input row before normalization. values carries typed
// cells for JSONL and coerced strings for CSV/XLSX; n is the 1-based source
// line or data-row number for skip reporting.
type rawRow struct {
	n      int
	values map[string]interface{}
}

// readFile parses a record file into raw rows, dispatching on extension.
// Syntax-level problems (unreadable file, malformed JSON, no header) fail the
// whole read; per-row semantic problems are left for normalization to skip.
func readFile(path string) ([]rawRow, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".jsonl", ".ndjson":
		return readJSONL(path)
	case ".csv":
		return readCSV(path)
	case ".xlsx":
		return readXLSX(path)
	default:
		return nil, eris.Errorf("feed: unsupported file type %q", ext)
	}
}

func readJSONL(path string) ([]rawRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: open %s", path)
	}
	defer file.Close()

	var rows []rawRow
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		values := map[string]interface{}{}
		if err := json.Unmarshal([]byte(text), &values); err != nil {
			return nil, eris.Wrapf(err, "feed: %s line %d", path, line)
		}
		rows = append(rows, rawRow{n: line, values: values})
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "feed: read %s", path)
	}
	return rows, nil
}

func readCSV(path string) ([]rawRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: open %s", path)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	cells, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "feed: read %s", path)
	}
	return cellRows(path, cells)
}

func readXLSX(path string) ([]rawRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: open %s", path)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, eris.Errorf("feed: %s has no sheets", path)
	}
	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, eris.Wrapf(err, "feed: read sheet %q of %s", sheets[0], path)
	}
	return cellRows(path, cells)
}

// cellRows turns a header row plus data rows into raw rows, coercing each
// cell. Cells beyond the header width are dropped; empty cells leave no key.
func cellRows(path string, cells [][]string) ([]rawRow, error) {
	if len(cells) < 2 {
		return nil, eris.Errorf("feed: %s needs a header row and at least one data row", path)
	}

	headers := make([]string, len(cells[0]))
	for i, h := range cells[0] {
		headers[i] = strings.ToLower(strings.TrimSpace(h))
	}

	rows := make([]rawRow, 0, len(cells)-1)
	for i := 1; i < len(cells); i++ {
		values := map[string]interface{}{}
		for j, cell := range cells[i] {
			if j >= len(headers) || headers[j] == "" {
				continue
			}
			if v := coerceCell(cell); v != nil {
				values[headers[j]] = v
			}
		}
		if len(values) == 0 {
			continue
		}
		rows = append(rows, rawRow{n: i, values: values})
	}
	return rows, nil
}

// coerceCell types a spreadsheet cell: booleans and numbers become typed
// values, everything else stays a string, blanks become nil.
func coerceCell(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
