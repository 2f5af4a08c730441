// Package job holds job definitions and the in-memory registry.
package job

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Definition is a validated, schedulable command bound to one
// container. Definitions are plain values; two are the same job
// configuration iff they compare equal.
type Definition struct {
	ContainerID string
	Name        string
	Schedule    string
	Command     string
}

// Key identifies a job by its owning container and name.
type Key struct {
	ContainerID string
	Name        string
}

func (d Definition) Key() Key {
	return Key{ContainerID: d.ContainerID, Name: d.Name}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", ShortID(k.ContainerID), k.Name)
}

// ShortID returns the familiar 12-character form of a container ID.
func ShortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// Entry is the registry's record of one schedulable job. Entries are
// created and mutated only by the engine's control loop; Running is
// the single field shared with execution workers and must be accessed
// atomically.
type Entry struct {
	Def      Definition
	Sched    cron.Schedule
	NextFire time.Time
	Running  atomic.Bool
}

// Registry maps identity keys to entries. It is owned by one control
// loop goroutine and therefore needs no internal locking.
type Registry struct {
	entries map[Key]*Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[Key]*Entry)}
}

func (r *Registry) Get(k Key) (*Entry, bool) {
	e, ok := r.entries[k]
	return e, ok
}

func (r *Registry) Put(e *Entry) {
	r.entries[e.Def.Key()] = e
}

func (r *Registry) Remove(k Key) (*Entry, bool) {
	e, ok := r.entries[k]
	if ok {
		delete(r.entries, k)
	}
	return e, ok
}

// ForContainer returns all entries owned by the given container.
func (r *Registry) ForContainer(containerID string) []*Entry {
	var out []*Entry
	for _, e := range r.entries {
		if e.Def.ContainerID == containerID {
			out = append(out, e)
		}
	}
	return out
}

// ContainerIDs returns the distinct container IDs with registered jobs.
func (r *Registry) ContainerIDs() []string {
	seen := make(map[string]struct{})
	var out []string
	for k := range r.entries {
		if _, ok := seen[k.ContainerID]; ok {
			continue
		}
		seen[k.ContainerID] = struct{}{}
		out = append(out, k.ContainerID)
	}
	return out
}

// Entries returns every registered entry, in no particular order.
func (r *Registry) Entries() []*Entry {
	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.entries)
}
