package tools

import (
	"slices"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolrouter", "tools")

// Registry is the set of tools known to the service.
// It is shared by reference between the selector, the tool client and the agent,
// and its content is only ever swapped as a whole by Replace.
type Registry struct {
	lock        sync.RWMutex
	names       []string
	byName      map[string]*Descriptor
	fingerprint string
}

// NewRegistry returns a registry loaded with the provided descriptors
func NewRegistry(list ...*Descriptor) *Registry {
	r := &Registry{}
	r.Replace(list)
	return r
}

// Replace atomically replaces the registry content.
// Later duplicates of a name are ignored.
func (r *Registry) Replace(list []*Descriptor) {
	names := make([]string, 0, len(list))
	byName := make(map[string]*Descriptor, len(list))
	for _, d := range list {
		if d == nil || d.Name == "" {
			continue
		}
		if _, ok := byName[d.Name]; ok {
			logger.KV(xlog.WARNING, "status", "duplicate_tool", "tool", d.Name)
			continue
		}
		names = append(names, d.Name)
		byName[d.Name] = d
	}
	fp := fingerprint(byName)

	r.lock.Lock()
	defer r.lock.Unlock()
	r.names = names
	r.byName = byName
	r.fingerprint = fp
}

// Get returns the descriptor by name
func (r *Registry) Get(name string) (*Descriptor, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// Has returns true if the tool is registered
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns tool names in load order
func (r *Registry) Names() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return slices.Clone(r.names)
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.names)
}

// Snapshot returns descriptors in load order
func (r *Registry) Snapshot() []*Descriptor {
	r.lock.RLock()
	defer r.lock.RUnlock()
	list := make([]*Descriptor, 0, len(r.names))
	for _, name := range r.names {
		list = append(list, r.byName[name])
	}
	return list
}

// Fingerprint returns the hash of the registry content,
// it changes only when names or descriptions change.
func (r *Registry) Fingerprint() string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.fingerprint
}

func fingerprint(byName map[string]*Descriptor) string {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	slices.Sort(names)

	h := xxhash.New()
	for _, name := range names {
		_, _ = h.WriteString(name)
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(byName[name].Description)
		_, _ = h.WriteString("\x00")
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
