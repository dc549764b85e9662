package feed

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/crossflow/crossflow/internal/core/observability/log"
	"github.com/crossflow/crossflow/internal/core/sim"
)

// clientQueue is how many encoded frames a subscriber may lag before the
// hub starts dropping frames for it.
const clientQueue = 16

// payload is the deduplicated part of a frame. Tick and timestamp are left
// out so an unchanged simulation (same lights, same vehicles, same stats)
// produces an identical hash and no redundant broadcast.
type payload struct {
	Lights   map[string]string `json:"lights"`
	Vehicles any               `json:"vehicles"`
	Stats    any               `json:"stats"`
}

type subscriber struct {
	id   string
	send chan []byte
}

// Hub fans encoded simulation frames out to feed subscribers. It implements
// the engine's sink interface: Push never blocks the simulation loop, slow
// subscribers lose frames instead.
type Hub struct {
	// pushMu serializes broadcasts and guards the dedup hash.
	pushMu  sync.Mutex
	lastSum uint64

	mu   sync.RWMutex
	subs map[string]*subscriber

	dropped atomic.Uint64
	logger  log.Log
}

func NewHub(logger log.Log) *Hub {
	if logger == nil {
		logger = log.Discard()
	}
	return &Hub{
		subs:   make(map[string]*subscriber),
		logger: logger,
	}
}

// Push encodes the frame and broadcasts it, skipping frames whose content
// hash matches the previous one.
func (h *Hub) Push(frame sim.Frame) {
	body, err := json.Marshal(payload{
		Lights:   frame.Lights,
		Vehicles: frame.Vehicles,
		Stats:    frame.Stats,
	})
	if err != nil {
		h.logger.Error("frame encode failed", log.Error(err))
		return
	}
	sum := xxhash.Sum64(body)

	h.pushMu.Lock()
	defer h.pushMu.Unlock()
	if sum == h.lastSum {
		return
	}
	h.lastSum = sum

	buf, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("frame encode failed", log.Error(err))
		return
	}

	// Broadcast under the read lock so Unsubscribe cannot close a channel
	// mid-send. Sends are non-blocking, so the lock is held briefly.
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		select {
		case s.send <- buf:
		default:
			h.dropped.Add(1)
			h.logger.Debug("frame dropped for slow subscriber",
				log.String("subscriber", s.id))
		}
	}
}

// Subscribe registers a new feed consumer and returns its id and frame
// channel. The channel closes on Unsubscribe.
func (h *Hub) Subscribe() (string, <-chan []byte) {
	s := &subscriber{
		id:   uuid.NewString(),
		send: make(chan []byte, clientQueue),
	}
	h.mu.Lock()
	h.subs[s.id] = s
	h.mu.Unlock()
	h.logger.Info("feed subscriber joined", log.String("subscriber", s.id))
	return s.id, s.send
}

// Unsubscribe removes a consumer and closes its channel. Unknown ids are
// ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	s, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()
	if ok {
		close(s.send)
		h.logger.Info("feed subscriber left", log.String("subscriber", id))
	}
}

// Subscribers returns the current consumer count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many frames were lost to slow consumers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
