package registry

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Common errors.
var (
	ErrNotFound  = errors.New("not found")
	ErrInvalidID = errors.New("invalid ID")
)

// Bot is an agent that receives pushed assignments.
type Bot struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Capabilities []string  `json:"capabilities"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Worker is an agent that pulls work with claims and sends heartbeats.
type Worker struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Capabilities []string  `json:"capabilities"`
	RegisteredAt time.Time `json:"registered_at"`

	// LastHeartbeat is updated only by Heartbeat.
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Client is the customer work is produced for.
type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	CreatedAt time.Time `json:"created_at"`
}

// Project groups tasks for a client. ClientID is a weak reference.
type Project struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Records is the full registry contents, used for snapshots.
type Records struct {
	Bots     []Bot
	Workers  []Worker
	Clients  []Client
	Projects []Project
}

// Registry stores identity records keyed by generated IDs.
type Registry struct {
	bots     map[string]Bot
	workers  map[string]Worker
	clients  map[string]Client
	projects map[string]Project

	now   func() time.Time
	idGen func() string
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source for registration and heartbeat times.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithIDGenerator sets a custom ID generator function.
func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) {
		r.idGen = gen
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		bots:     make(map[string]Bot),
		workers:  make(map[string]Worker),
		clients:  make(map[string]Client),
		projects: make(map[string]Project),
		now:      time.Now,
		idGen:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewID returns a fresh opaque identifier.
func (r *Registry) NewID() string {
	return r.idGen()
}

// RegisterBot adds a bot and returns it.
func (r *Registry) RegisterBot(name string, capabilities []string) Bot {
	b := Bot{
		ID:           r.idGen(),
		Name:         name,
		Capabilities: copyStrings(capabilities),
		RegisteredAt: r.now(),
	}
	r.bots[b.ID] = b
	return b
}

// RegisterWorker adds a worker and returns it. Registration counts as the
// first heartbeat.
func (r *Registry) RegisterWorker(name string, capabilities []string) Worker {
	now := r.now()
	w := Worker{
		ID:            r.idGen(),
		Name:          name,
		Capabilities:  copyStrings(capabilities),
		RegisteredAt:  now,
		LastHeartbeat: now,
	}
	r.workers[w.ID] = w
	return w
}

// Heartbeat records that a worker is alive.
func (r *Registry) Heartbeat(workerID string) (Worker, error) {
	if workerID == "" {
		return Worker{}, ErrInvalidID
	}
	w, ok := r.workers[workerID]
	if !ok {
		return Worker{}, fmt.Errorf("%w: worker %s", ErrNotFound, workerID)
	}
	w.LastHeartbeat = r.now()
	r.workers[workerID] = w
	return w, nil
}

// CreateClient adds a client and returns it.
func (r *Registry) CreateClient(name, contact string) Client {
	c := Client{
		ID:        r.idGen(),
		Name:      name,
		Contact:   contact,
		CreatedAt: r.now(),
	}
	r.clients[c.ID] = c
	return c
}

// CreateProject adds a project and returns it. The client is not checked.
func (r *Registry) CreateProject(clientID, name, description string) Project {
	p := Project{
		ID:          r.idGen(),
		ClientID:    clientID,
		Name:        name,
		Description: description,
		CreatedAt:   r.now(),
	}
	r.projects[p.ID] = p
	return p
}

// Bot retrieves a bot by ID.
func (r *Registry) Bot(id string) (Bot, error) {
	b, ok := r.bots[id]
	if !ok {
		return Bot{}, fmt.Errorf("%w: bot %s", ErrNotFound, id)
	}
	return b, nil
}

// Worker retrieves a worker by ID.
func (r *Registry) Worker(id string) (Worker, error) {
	w, ok := r.workers[id]
	if !ok {
		return Worker{}, fmt.Errorf("%w: worker %s", ErrNotFound, id)
	}
	return w, nil
}

// Client retrieves a client by ID.
func (r *Registry) Client(id string) (Client, error) {
	c, ok := r.clients[id]
	if !ok {
		return Client{}, fmt.Errorf("%w: client %s", ErrNotFound, id)
	}
	return c, nil
}

// Project retrieves a project by ID.
func (r *Registry) Project(id string) (Project, error) {
	p, ok := r.projects[id]
	if !ok {
		return Project{}, fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	return p, nil
}

// IsAgent reports whether id names a registered bot or worker.
func (r *Registry) IsAgent(id string) bool {
	if _, ok := r.bots[id]; ok {
		return true
	}
	_, ok := r.workers[id]
	return ok
}

// Bots returns all bots sorted by ID.
func (r *Registry) Bots() []Bot {
	out := make([]Bot, 0, len(r.bots))
	for _, b := range r.bots {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Workers returns all workers sorted by ID.
func (r *Registry) Workers() []Worker {
	out := make([]Worker, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Clients returns all clients sorted by ID.
func (r *Registry) Clients() []Client {
	out := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Projects returns all projects sorted by ID.
func (r *Registry) Projects() []Project {
	out := make([]Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindByCapability returns workers with a specific capability,
// most recent heartbeat first.
func (r *Registry) FindByCapability(capability string) []Worker {
	var out []Worker
	for _, w := range r.workers {
		if HasCapability(w.Capabilities, capability) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastHeartbeat.Equal(out[j].LastHeartbeat) {
			return out[i].LastHeartbeat.After(out[j].LastHeartbeat)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Snapshot returns a copy of every record.
func (r *Registry) Snapshot() Records {
	return Records{
		Bots:     r.Bots(),
		Workers:  r.Workers(),
		Clients:  r.Clients(),
		Projects: r.Projects(),
	}
}

// Restore replaces the registry contents. Records without an ID are dropped.
func (r *Registry) Restore(rec Records) {
	r.bots = make(map[string]Bot, len(rec.Bots))
	for _, b := range rec.Bots {
		if b.ID != "" {
			r.bots[b.ID] = b
		}
	}
	r.workers = make(map[string]Worker, len(rec.Workers))
	for _, w := range rec.Workers {
		if w.ID != "" {
			r.workers[w.ID] = w
		}
	}
	r.clients = make(map[string]Client, len(rec.Clients))
	for _, c := range rec.Clients {
		if c.ID != "" {
			r.clients[c.ID] = c
		}
	}
	r.projects = make(map[string]Project, len(rec.Projects))
	for _, p := range rec.Projects {
		if p.ID != "" {
			r.projects[p.ID] = p
		}
	}
}

// HasCapability checks if a capability list contains capability.
func HasCapability(capabilities []string, capability string) bool {
	for _, c := range capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

func copyStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
