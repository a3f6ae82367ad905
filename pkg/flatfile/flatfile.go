// Package flatfile reads and writes tree snapshots as JSON lines, one
// record per node. Files ending in .xz are transparently compressed.
package flatfile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"
)

// Record is one node of a snapshot. IDs are opaque strings; Parent
// refers to another record's ID or is empty for a root. A nil Priority
// means "keep input order".
type Record struct {
	ID       string `json:"id"`
	Parent   string `json:"parent,omitempty"`
	Priority *int   `json:"priority,omitempty"`
	Name     string `json:"name,omitempty"`
	Payload  []byte `json:"payload,omitempty"`
}

// Write streams records as JSON lines.
func Write(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("record %d: empty id", i)
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// Read parses JSON-line records. Blank lines are skipped.
func Read(r io.Reader) ([]Record, error) {
	var out []Record
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.ID == "" {
			return nil, fmt.Errorf("line %d: empty id", line)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteFile writes records to path, xz-compressed when the name ends
// in .xz.
func WriteFile(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if !strings.HasSuffix(path, ".xz") {
		return Write(f, records)
	}

	xw, err := xz.NewWriter(f)
	if err != nil {
		return fmt.Errorf("init xz writer: %w", err)
	}
	if err := Write(xw, records); err != nil {
		return err
	}
	if err := xw.Close(); err != nil {
		return fmt.Errorf("finish xz stream: %w", err)
	}
	return f.Close()
}

// ReadFile reads records from path, decompressing when the name ends
// in .xz.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".xz") {
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("init xz reader: %w", err)
		}
		r = xr
	}
	return Read(r)
}
