package datalog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/sweeney/vent-controller/internal/adc"
)

// CSVHeader is the first record of every data file.
var CSVHeader = []string{"timestamp", "unix", "ch01", "ch02", "ch03"}

const (
	dayLayout = "2006-01-02"
	rowLayout = "2006-01-02 15:04:05.000"
)

// CSVWriter appends samples to one CSV file per local day, named
// data_YYYY-MM-DD.csv. Each row is flushed and synced before WriteData returns.
type CSVWriter struct {
	dir       string
	rtcUpdate time.Time

	mu   sync.Mutex
	day  string
	file *os.File
	w    *csv.Writer
}

// NewCSVWriter creates dir if needed. rtcUpdate, if non-zero, is recorded as a
// comment at the top of each new file so readers know when the clock was last set.
func NewCSVWriter(dir string, rtcUpdate time.Time) (*CSVWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &CSVWriter{dir: dir, rtcUpdate: rtcUpdate}, nil
}

// FileName returns the data file name for the day containing ts.
func FileName(ts time.Time) string {
	return fmt.Sprintf("data_%s.csv", ts.Format(dayLayout))
}

// WriteData appends a row to the file for ts's day.
func (c *CSVWriter) WriteData(ts time.Time, values [adc.Channels]int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if day := ts.Format(dayLayout); day != c.day || c.file == nil {
		if err := c.rotate(ts); err != nil {
			return err
		}
	}

	row := []string{
		ts.Format(rowLayout),
		strconv.FormatFloat(float64(ts.UnixMilli())/1000, 'f', 3, 64),
	}
	for _, v := range values {
		row = append(row, strconv.FormatInt(int64(v), 10))
	}
	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("flush row: %w", err)
	}
	if err := c.file.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", c.file.Name(), err)
	}
	return nil
}

func (c *CSVWriter) rotate(ts time.Time) error {
	if err := c.closeFile(); err != nil {
		return err
	}

	path := filepath.Join(c.dir, FileName(ts))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if !c.rtcUpdate.IsZero() {
			if _, err := fmt.Fprintf(f, "# rtc_update=%s\n", c.rtcUpdate.Format(time.RFC3339)); err != nil {
				f.Close()
				return fmt.Errorf("write comment: %w", err)
			}
		}
		if err := w.Write(CSVHeader); err != nil {
			f.Close()
			return fmt.Errorf("write header: %w", err)
		}
	}

	c.file = f
	c.w = w
	c.day = ts.Format(dayLayout)
	return nil
}

func (c *CSVWriter) closeFile() error {
	if c.file == nil {
		return nil
	}
	var errs error
	c.w.Flush()
	errs = multierr.Append(errs, c.w.Error())
	errs = multierr.Append(errs, c.file.Close())
	c.file = nil
	c.w = nil
	c.day = ""
	if errs != nil {
		return fmt.Errorf("close data file: %w", errs)
	}
	return nil
}

// Close flushes and closes the current file.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeFile()
}
