package domain

import "time"

// ErrorKind classifies a per-file processing failure.
type ErrorKind string

const (
	ErrorKindIO    ErrorKind = "io"
	ErrorKindUTF8  ErrorKind = "utf8"
	ErrorKindPanic ErrorKind = "panic"
	ErrorKindOther ErrorKind = "other"
)

// ProcessingError is a per-file failure. It is data carried in the
// file's record, not a reason to stop the batch.
type ProcessingError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e ProcessingError) Error() string { return e.Message }

// FileStats are the content metrics gathered for one file.
type FileStats struct {
	WordCount       int          `json:"word_count"`
	LineCount       int          `json:"line_count"`
	CharFrequencies map[rune]int `json:"char_frequencies"`
	SizeBytes       int64        `json:"size_bytes"`
}

// FileAnalysis is the result record for one file. Exactly one is
// produced per file in a batch, whatever its outcome.
type FileAnalysis struct {
	Filename       string            `json:"filename"`
	Status         FileStatus        `json:"status"`
	Stats          FileStats         `json:"stats"`
	Errors         []ProcessingError `json:"errors,omitempty"`
	ProcessingTime time.Duration     `json:"processing_time"`
}

// Failed returns true if analysis recorded at least one error.
func (a *FileAnalysis) Failed() bool { return len(a.Errors) > 0 }
