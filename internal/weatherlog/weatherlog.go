// Package weatherlog appends observation rows to the CSV weather log.
package weatherlog

import (
	"bytes"
	"fmt"
	"os"

	"github.com/gocarina/gocsv"

	"github.com/lox/fogwatch/internal/models"
)

const DefaultPath = "weather_log.csv"

// Log is an append-only CSV file. Existing lines are never rewritten.
type Log struct {
	path string
}

func New(path string) *Log {
	if path == "" {
		path = DefaultPath
	}
	return &Log{path: path}
}

func (l *Log) Path() string {
	return l.path
}

// Append writes rows in order and returns how many were written. The header
// row is written only when the file is new or empty. An empty rows slice
// leaves the file untouched.
func (l *Log) Append(rows []models.Observation) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	needHeader := false
	info, err := os.Stat(l.path)
	switch {
	case os.IsNotExist(err):
		needHeader = true
	case err != nil:
		return 0, fmt.Errorf("stat weather log: %w", err)
	default:
		needHeader = info.Size() == 0
	}

	var buf bytes.Buffer
	if needHeader {
		err = gocsv.Marshal(rows, &buf)
	} else {
		err = gocsv.MarshalWithoutHeaders(rows, &buf)
	}
	if err != nil {
		return 0, fmt.Errorf("encode rows: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open weather log: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return 0, fmt.Errorf("write weather log: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close weather log: %w", err)
	}
	return len(rows), nil
}
