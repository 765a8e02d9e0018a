package observer

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"npcbots.ai/internal/protocol"
)

// Hub fans registry, live index and scaler events out to observer sockets. It is a
// Notifier for all of them; Notify never blocks and drops for slow subscribers.
type Hub struct {
	logger *log.Logger
	now    func() time.Time

	mu   sync.RWMutex
	subs map[uint64]*subscriber

	nextID  atomic.Uint64
	seq     atomic.Uint64
	dropped atomic.Uint64
}

type subscriber struct {
	id  uint64
	out chan []byte

	mu      sync.Mutex
	kinds   map[string]bool
	entries map[uint32]bool
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{logger: logger, now: time.Now, subs: map[uint64]*subscriber{}}
}

func (h *Hub) Notify(kind string, entry uint32, fields map[string]any) {
	msg := protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Seq:             h.seq.Add(1),
		TS:              h.now().UnixMilli(),
		Kind:            kind,
		Entry:           entry,
		Fields:          fields,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		h.logger.Printf("observer: encode %s event: %v", kind, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if !s.wants(kind, entry) {
			continue
		}
		select {
		case s.out <- b:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) subscribe(buf int, filter protocol.SubscribeMsg) *subscriber {
	s := &subscriber{id: h.nextID.Add(1), out: make(chan []byte, buf)}
	s.setFilter(filter)
	h.mu.Lock()
	h.subs[s.id] = s
	h.mu.Unlock()
	return s
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s.id)
	h.mu.Unlock()
}

// Subscribers is the number of connected observers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped counts events not delivered to a full subscriber queue.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (s *subscriber) setFilter(msg protocol.SubscribeMsg) {
	var kinds map[string]bool
	if len(msg.Kinds) > 0 {
		kinds = make(map[string]bool, len(msg.Kinds))
		for _, k := range msg.Kinds {
			kinds[k] = true
		}
	}
	var entries map[uint32]bool
	if len(msg.Entries) > 0 {
		entries = make(map[uint32]bool, len(msg.Entries))
		for _, e := range msg.Entries {
			entries[e] = true
		}
	}
	s.mu.Lock()
	s.kinds, s.entries = kinds, entries
	s.mu.Unlock()
}

func (s *subscriber) wants(kind string, entry uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kinds != nil && !s.kinds[kind] {
		return false
	}
	return s.entries == nil || s.entries[entry]
}
