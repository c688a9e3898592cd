// Package workbook reads provisioning settings and batches from an xlsx workbook.
package workbook

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/EternisAI/silo-provisioner/internal/provisioning"
	"github.com/xuri/excelize/v2"
)

const (
	SheetSettings = "settings"
	SheetApps     = "workshops_api"
	SheetClients  = "cte_provisioning"

	// settingsHeaderRow is 1-based; the two rows above it hold a title block.
	settingsHeaderRow = 3
)

// Column headers, matched case-insensitively after trimming.
const (
	ColTask        = "Task"
	ColStatus      = "Status"
	ColFunction    = "Function"
	ColDescription = "Descriptions"
	ColInput       = "Input"

	ColAppName      = "Apps Name"
	ColCharacterSet = "Character Set"

	ColClientName          = "client name"
	ColCurrentKeys         = "current keys"
	ColMaxAllowed          = "max allowed"
	ColAuthorizedUsers     = "authorized_users"
	ColAuthorizedProcesses = "authorized process"
)

var (
	ErrSheetNotFound = errors.New("sheet not found")
	ErrNoHeader      = errors.New("header row not found")
)

var truthy = map[string]bool{
	"true":    true,
	"yes":     true,
	"1":       true,
	"checked": true,
	"enabled": true,
	"x":       true,
}

type Workbook struct {
	path string
	file *excelize.File
}

func Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	return &Workbook{path: path, file: f}, nil
}

func (w *Workbook) Close() error {
	return w.file.Close()
}

func (w *Workbook) Path() string {
	return w.path
}

// ReadSettings returns task name to setting. The Function column wins over Status when
// both are filled in.
func (w *Workbook) ReadSettings() (provisioning.Settings, error) {
	t, err := w.table(SheetSettings, settingsHeaderRow)
	if err != nil {
		return nil, err
	}

	settings := make(provisioning.Settings)
	for _, row := range t.rows {
		task := t.get(row, ColTask)
		if task == "" {
			continue
		}
		raw := t.get(row, ColFunction)
		if raw == "" {
			raw = t.get(row, ColStatus)
		}
		settings[task] = provisioning.Setting{
			Enabled:     truthy[strings.ToLower(raw)],
			Description: t.get(row, ColDescription),
			Input:       t.get(row, ColInput),
		}
	}
	slog.Debug("Read settings", "path", w.path, "tasks", len(settings))
	return settings, nil
}

// ReadApps returns the application batch in sheet order. Rows with a blank name are kept
// so the orchestrator can report them; fully blank rows are dropped.
func (w *Workbook) ReadApps() ([]provisioning.Record, error) {
	t, err := w.table(SheetApps, 1)
	if err != nil {
		return nil, err
	}

	records := make([]provisioning.Record, 0, len(t.rows))
	for _, row := range t.rows {
		if blank(row) {
			continue
		}
		records = append(records, provisioning.Record{
			Name:          t.get(row, ColAppName),
			CharacterSets: splitList(t.get(row, ColCharacterSet)),
		})
	}
	slog.Debug("Read app batch", "path", w.path, "records", len(records))
	return records, nil
}

// ReadClients returns the transparent-encryption client batch. Rows without a client
// name are skipped.
func (w *Workbook) ReadClients() ([]provisioning.Record, error) {
	t, err := w.table(SheetClients, 1)
	if err != nil {
		return nil, err
	}

	records := make([]provisioning.Record, 0, len(t.rows))
	for i, row := range t.rows {
		name := t.get(row, ColClientName)
		if name == "" {
			continue
		}
		maxAllowed, ok := parseCount(t.get(row, ColMaxAllowed))
		if !ok {
			slog.Warn("Invalid max allowed value, using 0", "client", name, "row", i+2, "value", t.get(row, ColMaxAllowed))
		}
		records = append(records, provisioning.Record{
			Name:                name,
			CurrentKey:          t.get(row, ColCurrentKeys),
			MaxAllowed:          maxAllowed,
			AuthorizedUsers:     splitList(t.get(row, ColAuthorizedUsers)),
			AuthorizedProcesses: splitList(t.get(row, ColAuthorizedProcesses)),
		})
	}
	slog.Debug("Read client batch", "path", w.path, "records", len(records))
	return records, nil
}

type table struct {
	columns map[string]int
	rows    [][]string
}

func (t *table) get(row []string, column string) string {
	idx, ok := t.columns[headerKey(column)]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func (w *Workbook) table(sheet string, headerRow int) (*table, error) {
	idx, err := w.file.GetSheetIndex(sheet)
	if err != nil || idx < 0 {
		return nil, fmt.Errorf("%w: %s in %s", ErrSheetNotFound, sheet, w.path)
	}

	rows, err := w.file.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(rows) < headerRow {
		return nil, fmt.Errorf("%w: %s row %d", ErrNoHeader, sheet, headerRow)
	}

	header := rows[headerRow-1]
	columns := make(map[string]int, len(header))
	for i, h := range header {
		key := headerKey(h)
		if key == "" {
			continue
		}
		if _, dup := columns[key]; !dup {
			columns[key] = i
		}
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s row %d", ErrNoHeader, sheet, headerRow)
	}

	return &table{columns: columns, rows: rows[headerRow:]}, nil
}

func headerKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseCount reads a non-negative integer. Spreadsheet numbers may arrive as "5" or
// "5.0"; blank is 0 and valid.
func parseCount(s string) (int, bool) {
	if s == "" {
		return 0, true
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, false
		}
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
