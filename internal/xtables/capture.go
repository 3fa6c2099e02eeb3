package xtables

import (
	"fmt"
	"sync"
)

// DefaultCaptureLimit is the number of bytes kept from one Save call.
const DefaultCaptureLimit = 2000

// captureMu serializes every use of the process standard output by Capture.
var captureMu sync.Mutex

// CaptureError reports the step of a capture that failed.
type CaptureError struct {
	Op  string
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture stdout: %s: %v", e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

type readResult struct {
	data []byte
	err  error
}
