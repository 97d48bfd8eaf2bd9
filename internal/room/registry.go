package room

import (
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Prashantpareek-dev/Royal-Chess/internal/obslog"
	"github.com/Prashantpareek-dev/Royal-Chess/pkg/protocol"
	"go.uber.org/zap"
)

var ErrInvalidRoomID = errors.New("invalid room id")

// Room ids are matched case-insensitively; canonical form is upper-case.
var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{4,12}$`)

// CanonicalID validates the room id format and returns its canonical
// (upper-case) form.
func CanonicalID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if !roomIDPattern.MatchString(id) {
		return "", ErrInvalidRoomID
	}
	return strings.ToUpper(id), nil
}

// Registry is the process-wide room table. Rooms are created lazily on
// first join and destroyed only by the idle sweep.
type Registry struct {
	mu        sync.Mutex
	rooms     map[string]*Room
	chatLimit int
}

func NewRegistry(chatLimit int) *Registry {
	return &Registry{
		rooms:     make(map[string]*Room),
		chatLimit: chatLimit,
	}
}

// GetOrCreate resolves the room for a validated id, creating it on
// first use.
func (g *Registry) GetOrCreate(rawID string) (*Room, error) {
	id, err := CanonicalID(rawID)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.rooms[id]; ok {
		return r, nil
	}
	r := New(id, g.chatLimit, time.Now())
	g.rooms[id] = r
	obslog.L().Info("room_create", zap.String("room_id", id))
	return r, nil
}

// Get looks up an existing room without creating it.
func (g *Registry) Get(rawID string) (*Room, bool) {
	id, err := CanonicalID(rawID)
	if err != nil {
		return nil, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[id]
	return r, ok
}

// Has reports room existence for the orphaned-session sweep.
func (g *Registry) Has(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.rooms[id]
	return ok
}

// Len reports the number of live rooms.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// IDs lists the live room ids.
func (g *Registry) IDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.rooms))
	for id := range g.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Occupancies returns an occupancy summary per room for the ops surface.
func (g *Registry) Occupancies() map[string]protocol.PlayersUpdate {
	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.mu.Unlock()

	out := make(map[string]protocol.PlayersUpdate, len(rooms))
	for _, r := range rooms {
		out[r.ID] = r.Occupancy()
	}
	return out
}

// SweepIdle evicts every room whose last activity is older than the
// threshold and returns the evicted ids. Worst-case staleness before
// eviction is threshold plus the caller's sweep period.
func (g *Registry) SweepIdle(now time.Time, threshold time.Duration) []string {
	g.mu.Lock()
	candidates := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		candidates = append(candidates, r)
	}
	g.mu.Unlock()

	var evicted []string
	for _, r := range candidates {
		if now.Sub(r.LastActivity()) <= threshold {
			continue
		}
		g.mu.Lock()
		// re-check under the registry lock; a join may have revived it
		if cur, ok := g.rooms[r.ID]; ok && now.Sub(cur.LastActivity()) > threshold {
			delete(g.rooms, r.ID)
			evicted = append(evicted, r.ID)
		}
		g.mu.Unlock()
	}
	if len(evicted) > 0 {
		obslog.L().Info("room_sweep", zap.Int("evicted", len(evicted)), zap.Strings("room_ids", evicted))
	}
	return evicted
}
