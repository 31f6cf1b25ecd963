// Package snapshot converts orchestrator state to and from the persisted
// JSON document, and reads and writes that document through a state.Store.
//
// Two shapes are accepted on read. The current shape keeps tasks in an
// array whose order is the claim order:
//
//	{"version": 2, "saved_at": "...", "tasks": [{...}, {...}], "bots": [...], ...}
//
// The legacy shape keys every collection by id and carries no version:
//
//	{"tasks": {"<id>": {...}}, "bots": {"<id>": {...}}, ...}
//
// Legacy collections are ordered by id. Writes always use the current shape.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vinayprograms/orchestrator/registry"
	"github.com/vinayprograms/orchestrator/tasks"
)

// Version is the document version written by Encode.
const Version = 2

// ErrCorrupt indicates the data is not a snapshot document.
var ErrCorrupt = errors.New("corrupt snapshot")

// Document is the persisted form of the whole orchestrator state.
type Document struct {
	Version  int                `json:"version"`
	SavedAt  time.Time          `json:"saved_at"`
	Bots     []registry.Bot     `json:"bots"`
	Workers  []registry.Worker  `json:"workers"`
	Clients  []registry.Client  `json:"clients"`
	Projects []registry.Project `json:"projects"`
	Tasks    []*tasks.Task      `json:"tasks"`
}

// Empty returns a document with no records.
func Empty() *Document {
	return &Document{
		Version:  Version,
		Bots:     []registry.Bot{},
		Workers:  []registry.Worker{},
		Clients:  []registry.Client{},
		Projects: []registry.Project{},
		Tasks:    []*tasks.Task{},
	}
}

// Records returns the registry portion of the document.
func (d *Document) Records() registry.Records {
	return registry.Records{
		Bots:     d.Bots,
		Workers:  d.Workers,
		Clients:  d.Clients,
		Projects: d.Projects,
	}
}

// Migration describes what Decode had to fix.
type Migration struct {
	// Legacy is true when the input used id-keyed maps.
	Legacy bool

	// Migrated counts tasks rewritten into canonical form.
	Migrated int

	// Dropped lists tasks whose status could not be recognized.
	Dropped []string
}

// Encode renders doc as indented JSON in the current shape.
func Encode(doc *Document) ([]byte, error) {
	out := *doc
	out.Version = Version
	if out.Tasks == nil {
		out.Tasks = []*tasks.Task{}
	}
	if out.Bots == nil {
		out.Bots = []registry.Bot{}
	}
	if out.Workers == nil {
		out.Workers = []registry.Worker{}
	}
	if out.Clients == nil {
		out.Clients = []registry.Client{}
	}
	if out.Projects == nil {
		out.Projects = []registry.Project{}
	}
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

type rawDocument struct {
	Version  int             `json:"version"`
	SavedAt  time.Time       `json:"saved_at"`
	Bots     json.RawMessage `json:"bots"`
	Workers  json.RawMessage `json:"workers"`
	Clients  json.RawMessage `json:"clients"`
	Projects json.RawMessage `json:"projects"`
	Tasks    json.RawMessage `json:"tasks"`
}

// Decode parses either document shape and migrates legacy task records.
// Tasks with an unrecognizable status are dropped and listed in the
// returned Migration.
func Decode(data []byte) (*Document, Migration, error) {
	var mig Migration
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, mig, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	doc := Empty()
	doc.SavedAt = raw.SavedAt
	legacy := false

	decoders := []struct {
		name string
		raw  json.RawMessage
		fn   func(json.RawMessage) (bool, error)
	}{
		{"bots", raw.Bots, func(m json.RawMessage) (bool, error) {
			return decodeCollection(m, &doc.Bots, func(b *registry.Bot, id string) { setID(&b.ID, id) }, func(b registry.Bot) string { return b.ID })
		}},
		{"workers", raw.Workers, func(m json.RawMessage) (bool, error) {
			return decodeCollection(m, &doc.Workers, func(w *registry.Worker, id string) { setID(&w.ID, id) }, func(w registry.Worker) string { return w.ID })
		}},
		{"clients", raw.Clients, func(m json.RawMessage) (bool, error) {
			return decodeCollection(m, &doc.Clients, func(c *registry.Client, id string) { setID(&c.ID, id) }, func(c registry.Client) string { return c.ID })
		}},
		{"projects", raw.Projects, func(m json.RawMessage) (bool, error) {
			return decodeCollection(m, &doc.Projects, func(p *registry.Project, id string) { setID(&p.ID, id) }, func(p registry.Project) string { return p.ID })
		}},
		{"tasks", raw.Tasks, func(m json.RawMessage) (bool, error) {
			return decodeCollection(m, &doc.Tasks, func(t **tasks.Task, id string) {
				if *t != nil {
					setID(&(*t).ID, id)
				}
			}, func(t *tasks.Task) string {
				if t == nil {
					return ""
				}
				return t.ID
			})
		}},
	}
	for _, d := range decoders {
		isMap, err := d.fn(d.raw)
		if err != nil {
			return nil, mig, fmt.Errorf("%w: %s: %v", ErrCorrupt, d.name, err)
		}
		legacy = legacy || isMap
	}

	kept := doc.Tasks[:0]
	for _, t := range doc.Tasks {
		if t == nil || t.ID == "" {
			continue
		}
		changed, err := t.Migrate()
		if err != nil {
			mig.Dropped = append(mig.Dropped, t.ID)
			continue
		}
		if changed {
			mig.Migrated++
		}
		kept = append(kept, t)
	}
	doc.Tasks = kept

	mig.Legacy = legacy || raw.Version == 0
	doc.Version = Version
	return doc, mig, nil
}

// decodeCollection fills *out from either a JSON array or an id-keyed
// object. Object entries take their id from the key when the record has
// none, and come out sorted by id. It reports whether the object form was
// used.
func decodeCollection[T any](raw json.RawMessage, out *[]T, assignID func(*T, string), idOf func(T) string) (bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return false, nil
	}

	switch trimmed[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return false, err
		}
		*out = items
		return false, nil
	case '{':
		var byID map[string]T
		if err := json.Unmarshal(trimmed, &byID); err != nil {
			return false, err
		}
		items := make([]T, 0, len(byID))
		for id, item := range byID {
			assignID(&item, id)
			items = append(items, item)
		}
		sort.SliceStable(items, func(i, j int) bool { return idOf(items[i]) < idOf(items[j]) })
		*out = items
		return true, nil
	default:
		return false, fmt.Errorf("expected array or object")
	}
}

func setID(dst *string, id string) {
	if *dst == "" {
		*dst = id
	}
}
