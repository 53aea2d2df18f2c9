package logging

import (
	"fmt"
	"strings"
	"sync"
)

// Recorder keeps formatted messages in memory. Tests use it to assert on
// what a component logged.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(prefix, msg string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, prefix+fmt.Sprintf(msg, args...))
}

func (r *Recorder) Debug(msg string, args ...any) { r.add("DEBUG: ", msg, args...) }
func (r *Recorder) Info(msg string, args ...any)  { r.add("", msg, args...) }
func (r *Recorder) Warn(msg string, args ...any)  { r.add("WARNING: ", msg, args...) }
func (r *Recorder) Error(msg string, args ...any) { r.add("ERROR: ", msg, args...) }

// Lines returns a copy of everything logged so far.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Contains reports whether any line contains substr.
func (r *Recorder) Contains(substr string) bool {
	for _, l := range r.Lines() {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}
