package observe

import "sync"

// Recorder is an in-memory Bus that accumulates every notification.
// Used by tests in eventlog and chronostore to assert on
// what the storage path actually emitted.
type Recorder struct {
	mu           sync.Mutex
	Writes       []WriteEvent
	Segments     []SegmentEvent
	Compactions  []CompactionEvent
	ReaderLags   []LagSample
	IO           []IOEvent
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) OnWrite(ev WriteEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Writes = append(r.Writes, ev)
}

func (r *Recorder) OnSegment(ev SegmentEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Segments = append(r.Segments, ev)
}

func (r *Recorder) OnCompaction(ev CompactionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Compactions = append(r.Compactions, ev)
}

func (r *Recorder) OnReaderLag(ev LagSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ReaderLags = append(r.ReaderLags, ev)
}

func (r *Recorder) OnIO(ev IOEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.IO = append(r.IO, ev)
}

// BytesRead sums every IOEvent of the given kind ("" means every
// kind).
func (r *Recorder) BytesRead(kind string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, ev := range r.IO {
		if kind == "" || ev.Kind == kind {
			total += ev.Bytes
		}
	}
	return total
}
