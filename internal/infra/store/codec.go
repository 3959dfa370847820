// Package store holds the row encoding shared by the run history
// backends, so SQLite and Postgres persist records identically.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tutu-network/pfp/internal/domain"
)

// ResultRow is the column form of a domain.FileAnalysis.
// Character frequencies and errors are stored as JSON text.
type ResultRow struct {
	Filename  string
	Status    string
	SizeBytes int64
	Words     int
	Lines     int
	Chars     string
	Errors    string
	Duration  time.Duration
}

// EncodeResult flattens a record into its column form.
func EncodeResult(a domain.FileAnalysis) (ResultRow, error) {
	chars := make(map[string]int, len(a.Stats.CharFrequencies))
	for r, n := range a.Stats.CharFrequencies {
		chars[string(r)] = n
	}
	cb, err := json.Marshal(chars)
	if err != nil {
		return ResultRow{}, fmt.Errorf("encode chars for %s: %w", a.Filename, err)
	}

	var errs string
	if len(a.Errors) > 0 {
		eb, err := json.Marshal(a.Errors)
		if err != nil {
			return ResultRow{}, fmt.Errorf("encode errors for %s: %w", a.Filename, err)
		}
		errs = string(eb)
	}

	return ResultRow{
		Filename:  a.Filename,
		Status:    a.Status.String(),
		SizeBytes: a.Stats.SizeBytes,
		Words:     a.Stats.WordCount,
		Lines:     a.Stats.LineCount,
		Chars:     string(cb),
		Errors:    errs,
		Duration:  a.ProcessingTime,
	}, nil
}

// Decode rebuilds the record.
func (r ResultRow) Decode() (domain.FileAnalysis, error) {
	status, err := domain.ParseFileStatus(r.Status)
	if err != nil {
		return domain.FileAnalysis{}, fmt.Errorf("decode %s: %w", r.Filename, err)
	}

	var chars map[string]int
	if r.Chars != "" {
		if err := json.Unmarshal([]byte(r.Chars), &chars); err != nil {
			return domain.FileAnalysis{}, fmt.Errorf("decode chars for %s: %w", r.Filename, err)
		}
	}
	freq := make(map[rune]int, len(chars))
	for s, n := range chars {
		for _, c := range s {
			freq[c] = n
			break
		}
	}

	var errs []domain.ProcessingError
	if r.Errors != "" {
		if err := json.Unmarshal([]byte(r.Errors), &errs); err != nil {
			return domain.FileAnalysis{}, fmt.Errorf("decode errors for %s: %w", r.Filename, err)
		}
	}

	return domain.FileAnalysis{
		Filename: r.Filename,
		Status:   status,
		Stats: domain.FileStats{
			WordCount:       r.Words,
			LineCount:       r.Lines,
			CharFrequencies: freq,
			SizeBytes:       r.SizeBytes,
		},
		Errors:         errs,
		ProcessingTime: r.Duration,
	}, nil
}
