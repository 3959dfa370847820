// Package report renders batch results as a text or JSON document.
package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/tutu-network/pfp/internal/domain"
)

// Format selects the report encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// DefaultPath is where the CLI writes its report unless told otherwise.
const DefaultPath = "data/results.txt"

// ParseFormat accepts "text", "txt" or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%q: %w", s, domain.ErrUnknownFormat)
}

// FormatFor infers the format from a file extension, defaulting to text.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatText
}

// Save writes results to path, creating parent directories as needed.
func Save(path string, format Format, results []domain.FileAnalysis) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}

	bw := bufio.NewWriter(f)
	switch format {
	case FormatJSON:
		err = WriteJSON(bw, results)
	case FormatText:
		err = WriteText(bw, results)
	default:
		err = fmt.Errorf("%q: %w", format, domain.ErrUnknownFormat)
	}
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

// ─── Text ───────────────────────────────────────────────────────────────────

// WriteText renders one block per file:
//
//	File: notes.txt
//	  Size (bytes): 12
//	  Words: 2
//	  Lines: 1
//	  Character frequencies:
//	    'a': 3
//	  Errors:
//	    ...
//	  Processing time: 1.20ms
func WriteText(w io.Writer, results []domain.FileAnalysis) error {
	ew := &errWriter{w: w}
	for _, a := range results {
		ew.printf("File: %s\n", a.Filename)
		ew.printf("  Size (bytes): %d\n", a.Stats.SizeBytes)
		ew.printf("  Words: %d\n", a.Stats.WordCount)
		ew.printf("  Lines: %d\n", a.Stats.LineCount)
		ew.printf("  Character frequencies:\n")
		for _, r := range sortedRunes(a.Stats.CharFrequencies) {
			ew.printf("    '%s': %d\n", displayRune(r), a.Stats.CharFrequencies[r])
		}
		if len(a.Errors) > 0 {
			ew.printf("  Errors:\n")
			for _, e := range a.Errors {
				ew.printf("    %s\n", e.Message)
			}
		}
		ew.printf("  Processing time: %s\n\n", FormatDuration(a.ProcessingTime))
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

func sortedRunes(m map[rune]int) []rune {
	runes := make([]rune, 0, len(m))
	for r := range m {
		runes = append(runes, r)
	}
	slices.Sort(runes)
	return runes
}

// displayRune escapes control characters so each entry stays on one line.
func displayRune(r rune) string {
	if unicode.IsPrint(r) {
		return string(r)
	}
	q := strconv.QuoteRune(r)
	return q[1 : len(q)-1]
}

// FormatDuration prints d with two decimals in the largest unit that
// keeps the value at or above one: 1.50s, 12.34ms, 850.00µs.
func FormatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	case d >= time.Microsecond:
		return fmt.Sprintf("%.2fµs", float64(d)/float64(time.Microsecond))
	default:
		return fmt.Sprintf("%.2fns", float64(d))
	}
}

// ─── JSON ───────────────────────────────────────────────────────────────────

// Document is the JSON report layout.
type Document struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Files       []FileRecord `json:"files"`
}

// FileRecord is one file in the JSON report. Characters are keyed by
// their string form rather than by code point.
type FileRecord struct {
	Filename         string                   `json:"filename"`
	Status           domain.FileStatus        `json:"status"`
	SizeBytes        int64                    `json:"size_bytes"`
	Words            int                      `json:"words"`
	Lines            int                      `json:"lines"`
	Characters       map[string]int           `json:"characters"`
	Errors           []domain.ProcessingError `json:"errors,omitempty"`
	ProcessingTimeMS float64                  `json:"processing_time_ms"`
}

// NewDocument converts results into the JSON layout.
func NewDocument(results []domain.FileAnalysis) Document {
	doc := Document{
		GeneratedAt: time.Now().UTC(),
		Files:       make([]FileRecord, 0, len(results)),
	}
	for _, a := range results {
		chars := make(map[string]int, len(a.Stats.CharFrequencies))
		for r, n := range a.Stats.CharFrequencies {
			chars[string(r)] = n
		}
		doc.Files = append(doc.Files, FileRecord{
			Filename:         a.Filename,
			Status:           a.Status,
			SizeBytes:        a.Stats.SizeBytes,
			Words:            a.Stats.WordCount,
			Lines:            a.Stats.LineCount,
			Characters:       chars,
			Errors:           a.Errors,
			ProcessingTimeMS: float64(a.ProcessingTime) / float64(time.Millisecond),
		})
	}
	return doc
}

// WriteJSON writes results as an indented JSON document.
func WriteJSON(w io.Writer, results []domain.FileAnalysis) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewDocument(results))
}
