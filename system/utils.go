package system

import (
	"bufio"
	"bytes"
	"io"
	"sync"

	"github.com/goccy/go-json"
)

// Lines longer than this are truncated before being handed to console
// subscribers.
var maxBufferSize = 64 * 1024

var cr = []byte("\r")

// FirstNotEmpty returns the first string passed in that is not an empty value.
func FirstNotEmpty(v ...string) string {
	for _, val := range v {
		if val != "" {
			return val
		}
	}
	return ""
}

// ScanReader reads the reader line by line and passes every line to the
// callback. Lines are truncated at maxBufferSize and trailing carriage
// returns are stripped. The callback receives its own copy of the line.
func ScanReader(r io.Reader, callback func(line []byte)) error {
	br := bufio.NewReaderSize(r, 4096)
	var buf bytes.Buffer
	for {
		buf.Reset()
		var err error
		for {
			var chunk []byte
			var isPrefix bool
			chunk, isPrefix, err = br.ReadLine()
			if room := maxBufferSize - buf.Len(); room > 0 {
				if len(chunk) > room {
					chunk = chunk[:room]
				}
				buf.Write(chunk)
			}
			if err != nil || !isPrefix {
				break
			}
		}
		if err != nil && err != io.EOF {
			return err
		}
		if line := bytes.TrimSuffix(buf.Bytes(), cr); len(line) > 0 {
			c := make([]byte, len(line))
			copy(c, line)
			callback(c)
		}
		if err == io.EOF {
			return nil
		}
	}
}

type AtomicBool struct {
	v  bool
	mu sync.RWMutex
}

func NewAtomicBool(v bool) *AtomicBool {
	return &AtomicBool{v: v}
}

func (ab *AtomicBool) Store(v bool) {
	ab.mu.Lock()
	ab.v = v
	ab.mu.Unlock()
}

// SwapIf stores "v" only if the current value is its opposite, returning true
// when the swap happened.
func (ab *AtomicBool) SwapIf(v bool) bool {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	if ab.v != v {
		ab.v = v
		return true
	}
	return false
}

func (ab *AtomicBool) Load() bool {
	ab.mu.RLock()
	defer ab.mu.RUnlock()
	return ab.v
}

func (ab *AtomicBool) MarshalJSON() ([]byte, error) {
	return json.Marshal(ab.Load())
}

// Atomic guards any value behind a read/write mutex.
type Atomic[T any] struct {
	v  T
	mu sync.RWMutex
}

func NewAtomic[T any](v T) *Atomic[T] {
	return &Atomic[T]{v: v}
}

func (a *Atomic[T]) Store(v T) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.v = v
}

func (a *Atomic[T]) Load() T {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.v
}

func (a *Atomic[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Load())
}
