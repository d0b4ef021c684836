// Package output exports integrity check reports as NDJSON or CSV, and
// mirrors every record to an OTLP log endpoint when one is configured.
package output

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"tripline/config"
	"tripline/logger"
	"tripline/report"
)

type Writer struct {
	file    *os.File
	buf     *bufio.Writer
	csvw    *csv.Writer
	mu      sync.Mutex
	otel    *otelLogger
	path    string
	format  string
	written int
}

// New opens the export file named by cfg.ReportJSON. With no file and no
// OTEL endpoint configured it returns a nil Writer, on which every method
// is a no-op.
func New(cfg *config.Config) (*Writer, error) {
	format := strings.ToLower(cfg.ReportFormat)
	if format == "" {
		format = "json"
	}
	w := &Writer{path: cfg.ReportJSON, format: format}

	otel, err := newOtelLogger(cfg)
	if err != nil {
		logger.Warnf("OTEL export disabled: %v", err)
	} else {
		w.otel = otel
	}
	if w.path == "" && w.otel == nil {
		return nil, nil
	}
	if w.path != "" {
		if err := w.openFile(); err != nil {
			w.otel.Shutdown()
			return nil, err
		}
	}
	return w, nil
}

func (w *Writer) openFile() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	w.file = f
	w.buf = bufio.NewWriterSize(f, 256*1024)
	if w.format == "csv" {
		w.csvw = csv.NewWriter(w.buf)
		if err := w.csvw.Write(csvHeader); err != nil {
			return err
		}
	}
	return nil
}

// WriteReport exports every record of rep.
func (w *Writer) WriteReport(rep *report.Report) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, rec := range Records(rep) {
		if err := w.writeLocked(rec); err != nil {
			return fmt.Errorf("export %s record: %w", rec.RecordType, err)
		}
		w.otel.Emit(rec.RecordType, rec.Payload)
	}
	return w.flush()
}

func (w *Writer) writeLocked(rec Record) error {
	if w.file == nil {
		return nil
	}
	w.written++
	if w.csvw != nil {
		return w.csvw.Write(csvRow(rec))
	}
	data, err := jsonMarshal(rec)
	if err != nil {
		return err
	}
	if _, err := w.buf.Write(data); err != nil {
		return err
	}
	return w.buf.WriteByte('\n')
}

// Written returns the number of records written to the file.
func (w *Writer) Written() int {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

func (w *Writer) flush() error {
	if w.csvw != nil {
		w.csvw.Flush()
		if err := w.csvw.Error(); err != nil {
			return err
		}
	}
	if w.buf != nil {
		return w.buf.Flush()
	}
	return nil
}

func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.otel.Shutdown()
	if w.file == nil {
		return nil
	}
	err := w.flush()
	if serr := w.file.Sync(); err == nil {
		err = serr
	}
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	w.file = nil
	return err
}

var csvHeader = []string{
	"record_type",
	"schema_version",
	"genre",
	"rule",
	"severity",
	"change",
	"path",
	"properties",
	"changed",
	"kind",
	"message",
	"payload",
}

func csvRow(rec Record) []string {
	row := make([]string, len(csvHeader))
	row[0] = rec.RecordType
	row[1] = rec.SchemaVersion
	switch p := rec.Payload.(type) {
	case ViolationPayload:
		row[2] = p.Genre
		row[3] = p.Rule
		row[4] = strconv.Itoa(p.Severity)
		row[5] = p.Change
		row[6] = p.Path
		row[7] = propertiesField(p.Properties)
		if len(p.Changed) > 0 {
			row[8] = jsonString(p.Changed)
		}
	case ErrorPayload:
		row[2] = p.Genre
		row[3] = p.Rule
		row[6] = p.Path
		row[9] = p.Kind
		row[10] = p.Message
	default:
		row[11] = jsonString(p)
	}
	return row
}

// propertiesField renders props as name=value pairs in name order.
func propertiesField(props map[string]string) string {
	if len(props) == 0 {
		return ""
	}
	var b strings.Builder
	for i, k := range sortedKeys(props) {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(props[k])
	}
	return b.String()
}

func jsonString(value interface{}) string {
	if value == nil {
		return ""
	}
	bytes, err := jsonMarshal(value)
	if err != nil {
		return ""
	}
	return string(bytes)
}
