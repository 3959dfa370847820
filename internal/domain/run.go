package domain

import "time"

// Run summarizes one batch invocation.
type Run struct {
	ID         string        `json:"id"`
	Root       string        `json:"root"`
	Workers    int           `json:"workers"`
	Total      int           `json:"total"`
	Completed  int           `json:"completed"`
	Failed     int           `json:"failed"`
	Cancelled  int           `json:"cancelled"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Elapsed    time.Duration `json:"elapsed"`
}
