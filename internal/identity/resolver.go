// Package identity maps wire-level device identifiers onto canonical device ids.
package identity

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"GasMonitorAPI/internal/models"
)

// ErrNotFound is returned for identifiers that do not resolve to a registered device.
var ErrNotFound = errors.New("device not found")

// identifierPattern splits "<prefix><ordinal>". The prefix must end in a
// non-digit so that "sensor01" yields ordinal "01", not "1".
var identifierPattern = regexp.MustCompile(`^([A-Za-z](?:[A-Za-z0-9_:/.\-]*[A-Za-z_:/.\-])?)([0-9]{1,9})$`)

// Registry is an immutable lookup of known devices.
type Registry struct {
	prefix    string
	byOrdinal map[int]models.Device
	byID      map[int]models.Device
	ids       []int
}

// NewRegistry validates the device list and builds the lookup tables.
// A device with no ID takes its ordinal as its canonical id.
func NewRegistry(prefix string, devices []models.Device) (*Registry, error) {
	r := &Registry{
		prefix:    normalizePrefix(prefix),
		byOrdinal: make(map[int]models.Device, len(devices)),
		byID:      make(map[int]models.Device, len(devices)),
	}

	for _, d := range devices {
		if d.Ordinal <= 0 {
			return nil, fmt.Errorf("device %q: ordinal must be positive", d.Name)
		}
		if d.ID == 0 {
			d.ID = d.Ordinal
		}
		if _, dup := r.byOrdinal[d.Ordinal]; dup {
			return nil, fmt.Errorf("duplicate device ordinal %d", d.Ordinal)
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate device id %d", d.ID)
		}
		if d.Name == "" {
			d.Name = fmt.Sprintf("device-%02d", d.Ordinal)
		}
		if d.ExternalIdentifier == "" {
			d.ExternalIdentifier = r.Identifier(d.Ordinal)
		}
		r.byOrdinal[d.Ordinal] = d
		r.byID[d.ID] = d
		r.ids = append(r.ids, d.ID)
	}

	sort.Ints(r.ids)
	return r, nil
}

// NewFleetRegistry registers ordinals 1..size with id == ordinal.
func NewFleetRegistry(prefix string, size int) (*Registry, error) {
	devices := make([]models.Device, 0, size)
	for i := 1; i <= size; i++ {
		devices = append(devices, models.Device{Ordinal: i})
	}
	return NewRegistry(prefix, devices)
}

// Resolve extracts the ordinal suffix of raw and returns the canonical device id.
func (r *Registry) Resolve(raw string) (int, error) {
	m := identifierPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0, fmt.Errorf("%w: malformed identifier %q", ErrNotFound, raw)
	}

	if r.prefix != "" && normalizePrefix(m[1]) != r.prefix {
		return 0, fmt.Errorf("%w: foreign fleet prefix in %q", ErrNotFound, raw)
	}

	ordinal, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	d, ok := r.byOrdinal[ordinal]
	if !ok {
		return 0, fmt.Errorf("%w: ordinal %d not registered", ErrNotFound, ordinal)
	}
	return d.ID, nil
}

// Device returns the registered device for a canonical id.
func (r *Registry) Device(id int) (models.Device, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// Devices returns all registered devices ordered by id.
func (r *Registry) Devices() []models.Device {
	out := make([]models.Device, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.ids)
}

// Identifier renders the wire identifier a device of the given ordinal should use.
func (r *Registry) Identifier(ordinal int) string {
	prefix := r.prefix
	if prefix == "" {
		prefix = "device"
	}
	return fmt.Sprintf("%s-%02d", prefix, ordinal)
}

func normalizePrefix(p string) string {
	return strings.ToLower(strings.TrimRight(p, "_:/.-"))
}
