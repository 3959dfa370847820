// Package analyzer computes text statistics for a single file.
package analyzer

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/tutu-network/pfp/internal/domain"
)

// Text analyzes UTF-8 text files. The zero value is ready to use.
type Text struct {
	// MaxBytes rejects files larger than this when > 0.
	MaxBytes int64
}

// New returns a Text analyzer with no size limit.
func New() *Text { return &Text{} }

// Analyze reads the whole file at path and returns its statistics.
// Files that are not valid UTF-8 fail with domain.ErrInvalidUTF8.
func (a *Text) Analyze(path string) (domain.FileStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.FileStats{}, err
	}
	defer f.Close()

	if a.MaxBytes > 0 {
		info, err := f.Stat()
		if err != nil {
			return domain.FileStats{}, err
		}
		if info.Size() > a.MaxBytes {
			return domain.FileStats{}, fmt.Errorf("%s: %d bytes exceeds limit of %d", path, info.Size(), a.MaxBytes)
		}
	}
	return a.AnalyzeReader(f)
}

// AnalyzeReader computes statistics over everything r yields.
func (a *Text) AnalyzeReader(r io.Reader) (domain.FileStats, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return domain.FileStats{}, err
	}
	return Stats(data)
}

// Stats computes statistics for an in-memory buffer.
func Stats(data []byte) (domain.FileStats, error) {
	if !utf8.Valid(data) {
		return domain.FileStats{}, domain.ErrInvalidUTF8
	}

	text := string(data)
	freq := make(map[rune]int)
	for _, r := range text {
		freq[r]++
	}

	return domain.FileStats{
		WordCount:       len(strings.Fields(text)),
		LineCount:       countLines(data),
		CharFrequencies: freq,
		SizeBytes:       int64(len(data)),
	}, nil
}

// countLines counts lines the way a line iterator does: a trailing
// newline does not start an extra empty line.
func countLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}
