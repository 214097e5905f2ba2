package datalog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sweeney/vent-controller/internal/adc"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.Comment = '#'
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

func TestCSVWriterWritesHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	w, err := NewCSVWriter(dir, time.Time{})
	if err != nil {
		t.Fatalf("NewCSVWriter: %v", err)
	}

	ts := time.Date(2026, 3, 14, 9, 0, 0, 250*int(time.Millisecond), time.Local)
	if err := w.WriteData(ts, [adc.Channels]int32{100, -200, 300}); err != nil {
		t.Fatalf("WriteData: %v", err)
	}
	if err := w.WriteData(ts.Add(time.Second), [adc.Channels]int32{1, 2, 3}); err != nil {
		t.Fatalf("WriteData: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rows := readCSV(t, filepath.Join(dir, "data_2026-03-14.csv"))
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d rows", len(rows))
	}
	if diff := cmp.Diff(CSVHeader, rows[0]); diff != "" {
		t.Errorf("header (-want +got):\n%s", diff)
	}
	if rows[1][0] != "2026-03-14 09:00:00.250" {
		t.Errorf("timestamp: got %q", rows[1][0])
	}
	if diff := cmp.Diff([]string{"100", "-200", "300"}, rows[1][2:]); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}
}

func TestCSVWriterRotatesDaily(t *testing.T) {
	dir := t.TempDir()
	w, err := NewCSVWriter(dir, time.Time{})
	if err != nil {
		t.Fatalf("NewCSVWriter: %v", err)
	}
	defer w.Close()

	late := time.Date(2026, 3, 14, 23, 59, 59, 0, time.Local)
	w.WriteData(late, [adc.Channels]int32{1, 1, 1})
	w.WriteData(late.Add(2*time.Second), [adc.Channels]int32{2, 2, 2})

	for _, name := range []string{"data_2026-03-14.csv", "data_2026-03-15.csv"} {
		rows := readCSV(t, filepath.Join(dir, name))
		if len(rows) != 2 {
			t.Errorf("%s: expected header + 1 row, got %d", name, len(rows))
		}
	}
}

func TestCSVWriterAppendsWithoutSecondHeader(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)

	for i := 0; i < 2; i++ {
		w, err := NewCSVWriter(dir, time.Time{})
		if err != nil {
			t.Fatalf("NewCSVWriter: %v", err)
		}
		if err := w.WriteData(ts, [adc.Channels]int32{int32(i), 0, 0}); err != nil {
			t.Fatalf("WriteData: %v", err)
		}
		w.Close()
	}

	rows := readCSV(t, filepath.Join(dir, FileName(ts)))
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows after restart, got %d", len(rows))
	}
}

func TestCSVWriterRecordsRTCUpdate(t *testing.T) {
	dir := t.TempDir()
	rtc := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)
	w, err := NewCSVWriter(dir, rtc)
	if err != nil {
		t.Fatalf("NewCSVWriter: %v", err)
	}
	ts := time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)
	w.WriteData(ts, [adc.Channels]int32{})
	w.Close()

	data, err := os.ReadFile(filepath.Join(dir, FileName(ts)))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(data), "# rtc_update=2026-03-14T06:00:00Z\n") {
		t.Errorf("missing rtc comment, file starts %q", string(data)[:40])
	}
}

func TestCSVWriterUnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewCSVWriter(filepath.Join(blocker, "sub"), time.Time{}); err == nil {
		t.Error("expected error creating data dir under a regular file")
	}
}
