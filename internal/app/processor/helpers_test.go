package processor

import "time"

const (
	timeoutShort = 2 * time.Second
	tick         = 5 * time.Millisecond
)
