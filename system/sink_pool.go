package system

import (
	"sync"
	"time"
)

// SinkPool fans console output out to any number of subscribers. A pool lives
// exactly as long as the process that feeds it; once destroyed every
// subscriber channel is closed and new subscriptions are handed an already
// closed channel.
type SinkPool struct {
	mu     sync.RWMutex
	sinks  []chan []byte
	closed bool
}

// NewSinkPool returns a new empty SinkPool.
func NewSinkPool() *SinkPool {
	return &SinkPool{}
}

// On registers a channel with the pool. If the pool has already been destroyed
// the channel is closed immediately.
func (p *SinkPool) On(c chan []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		close(c)
		return
	}
	p.sinks = append(p.sinks, c)
}

// Off removes the channel from the pool and closes it. Unknown channels are
// ignored.
func (p *SinkPool) Off(c chan []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, sink := range p.sinks {
		if sink != c {
			continue
		}
		p.sinks = append(p.sinks[:i], p.sinks[i+1:]...)
		close(c)
		return
	}
}

// Subscribe creates a buffered channel, registers it and returns it along
// with a function that unregisters it again.
func (p *SinkPool) Subscribe(size int) (<-chan []byte, func()) {
	c := make(chan []byte, size)
	p.On(c)
	return c, func() { p.Off(c) }
}

// Len returns the number of registered sinks.
func (p *SinkPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sinks)
}

// Destroy closes every registered channel and marks the pool as closed.
func (p *SinkPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.sinks {
		close(c)
	}
	p.sinks = nil
	p.closed = true
}

// Push sends the data to every sink. A sink whose buffer is full has its
// oldest message dropped to make room, so a slow reader never stalls the
// process output.
func (p *SinkPool) Push(data []byte) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var wg sync.WaitGroup
	wg.Add(len(p.sinks))
	for _, c := range p.sinks {
		go func(c chan []byte) {
			defer wg.Done()
			select {
			case c <- data:
			case <-time.After(time.Millisecond * 10):
				select {
				case <-c:
				default:
				}
				select {
				case c <- data:
				default:
				}
			}
		}(c)
	}
	wg.Wait()
}
