package match

import "sync"

// PublishLog receives the events of every book mutation in sequence order.
//
// Publish runs on the goroutine that mutates the book, and the logs go back
// to a pool once it returns. A sink that keeps a log must copy it.
type PublishLog interface {
	Publish(...*BookLog)
}

// PublishLogFunc adapts a plain function to PublishLog.
type PublishLogFunc func(...*BookLog)

func (f PublishLogFunc) Publish(logs ...*BookLog) {
	f(logs...)
}

// Tee fans every batch out to each sink in order.
func Tee(sinks ...PublishLog) PublishLog {
	return PublishLogFunc(func(logs ...*BookLog) {
		for _, sink := range sinks {
			sink.Publish(logs...)
		}
	})
}

// MemoryPublishLog keeps a copy of everything published. Safe to read while
// the book is being written.
type MemoryPublishLog struct {
	mu   sync.RWMutex
	logs []*BookLog
}

func NewMemoryPublishLog() *MemoryPublishLog {
	return &MemoryPublishLog{}
}

func (m *MemoryPublishLog) Publish(logs ...*BookLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, log := range logs {
		cpy := *log
		m.logs = append(m.logs, &cpy)
	}
}

func (m *MemoryPublishLog) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.logs)
}

// Get panics when index is out of range.
func (m *MemoryPublishLog) Get(index int) *BookLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logs[index]
}

// Logs returns the stored logs in publish order.
func (m *MemoryPublishLog) Logs() []*BookLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*BookLog(nil), m.logs...)
}

type discardPublishLog struct{}

func (discardPublishLog) Publish(...*BookLog) {}
