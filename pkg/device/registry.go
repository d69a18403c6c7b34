package device

import (
	"sync"

	"github.com/google/uuid"

	"github.com/video-system/go-sensor-stream/pkg/sensor"
)

// Registry owns live devices. Sensors reach their device only through a
// registry lookup, so a closed device is unreachable from its sensors.
type Registry struct {
	mu      sync.RWMutex
	devices map[uuid.UUID]*Device
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{devices: make(map[uuid.UUID]*Device)}
}

func (r *Registry) add(d *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[d.id] = d
}

func (r *Registry) remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, id)
}

// Lookup returns a live device by id
func (r *Registry) Lookup(id uuid.UUID) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	return d, ok
}

// List returns the ids of all live devices
func (r *Registry) List() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	return ids
}

// ownerRef returns a non-owning handle to the device with id
func (r *Registry) ownerRef(id uuid.UUID) sensor.OwnerRef {
	return func() (sensor.Owner, bool) {
		d, ok := r.Lookup(id)
		if !ok {
			return nil, false
		}
		return d, true
	}
}
