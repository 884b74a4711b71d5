package metrics

import (
	"log"
	"sort"
	"strings"
	"sync"
)

// Recorder counts operational events. Counter names follow the
// "<component>.<form>.<outcome>" convention used by the dashboards.
type Recorder interface {
	Increment(name string, tags ...string)
}

// LogRecorder writes every increment to the process log. Used in production
// until a real aggregation backend is wired in front of it.
type LogRecorder struct{}

func (LogRecorder) Increment(name string, tags ...string) {
	if len(tags) == 0 {
		log.Printf("metric: %s", name)
		return
	}
	log.Printf("metric: %s [%s]", name, strings.Join(tags, ","))
}

// MemoryRecorder keeps counts in memory. Tests assert against it.
type MemoryRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{counts: make(map[string]int)}
}

func (m *MemoryRecorder) Increment(name string, tags ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key(name, tags)]++
}

// Count returns the number of increments for a name with exactly the given
// tags.
func (m *MemoryRecorder) Count(name string, tags ...string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key(name, tags)]
}

func key(name string, tags []string) string {
	if len(tags) == 0 {
		return name
	}
	sorted := append([]string(nil), tags...)
	sort.Strings(sorted)
	return name + "|" + strings.Join(sorted, ",")
}
