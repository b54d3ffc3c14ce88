package progress

import (
	"sync"

	"github.com/MimeLyc/sales-playbook/internal/jobs"
	"github.com/MimeLyc/sales-playbook/internal/metrics"
	"github.com/MimeLyc/sales-playbook/pkg/log"
)

const defaultBuffer = 64

// Event is one progress update for a job. Current and Total count items of
// the current stage only.
type Event struct {
	Stage           jobs.Stage `json:"stage"`
	Current         int        `json:"current"`
	Total           int        `json:"total"`
	Message         string     `json:"message"`
	ResultReference string     `json:"resultReference,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// Terminal reports whether no further events follow for the job.
func (e Event) Terminal() bool {
	return e.Stage == jobs.StageDone || e.Error != ""
}

// Fatal reports whether the event announces a failed job. A done event with
// an error is a partial success.
func (e Event) Fatal() bool {
	return e.Error != "" && e.ResultReference == ""
}

type Publisher interface {
	Publish(jobID string, ev Event)
}

// Bus fans progress events out to live subscribers, keyed by job id.
// Delivery is at most once: events published while nobody listens are lost
// and a subscriber that falls behind by more than the buffer misses events.
// Every subscriber channel keeps one slot beyond the buffer for the terminal
// event, so a lagging subscriber still learns how its job ended.
type Bus struct {
	buffer int

	mu       sync.Mutex
	nextID   uint64
	channels map[string]map[uint64]chan Event
}

var _ Publisher = (*Bus)(nil)

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Bus{
		buffer:   buffer,
		channels: make(map[string]map[uint64]chan Event),
	}
}

type Subscription struct {
	C <-chan Event

	bus   *Bus
	jobID string
	id    uint64
	once  sync.Once
}

// Close detaches the subscription. The job's channel goes away with its last
// subscriber.
func (s *Subscription) Close() {
	if s == nil || s.bus == nil {
		return
	}
	s.once.Do(func() {
		s.bus.unsubscribe(s.jobID, s.id)
	})
}

func (b *Bus) Subscribe(jobID string) *Subscription {
	ch := make(chan Event, b.buffer+1)

	b.mu.Lock()
	subs, ok := b.channels[jobID]
	if !ok {
		subs = make(map[uint64]chan Event)
		b.channels[jobID] = subs
	}
	b.nextID++
	id := b.nextID
	subs[id] = ch
	b.mu.Unlock()

	metrics.SubscriberAdded()
	return &Subscription{C: ch, bus: b, jobID: jobID, id: id}
}

func (b *Bus) Publish(jobID string, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.channels[jobID]
	if !ok {
		metrics.IncProgressEvent("unobserved")
		return
	}
	terminal := ev.Terminal()
	for id, ch := range subs {
		if !terminal && len(ch) >= b.buffer {
			metrics.IncProgressEvent("dropped")
			log.Warn("Progress subscriber %d of job %s is full, dropping %s event", id, jobID, ev.Stage)
			continue
		}
		select {
		case ch <- ev:
			metrics.IncProgressEvent("delivered")
		default:
			metrics.IncProgressEvent("dropped")
			log.Warn("Progress subscriber %d of job %s is full, dropping %s event", id, jobID, ev.Stage)
		}
	}
	if terminal {
		b.closeLocked(jobID)
	}
}

// Close ends every subscription of the job.
func (b *Bus) Close(jobID string) {
	b.mu.Lock()
	b.closeLocked(jobID)
	b.mu.Unlock()
}

func (b *Bus) Subscribers(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels[jobID])
}

func (b *Bus) closeLocked(jobID string) {
	subs, ok := b.channels[jobID]
	if !ok {
		return
	}
	for _, ch := range subs {
		close(ch)
		metrics.SubscriberRemoved()
	}
	delete(b.channels, jobID)
}

func (b *Bus) unsubscribe(jobID string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.channels[jobID]
	if !ok {
		return
	}
	ch, ok := subs[id]
	if !ok {
		return
	}
	close(ch)
	metrics.SubscriberRemoved()
	delete(subs, id)
	if len(subs) == 0 {
		delete(b.channels, jobID)
	}
}
