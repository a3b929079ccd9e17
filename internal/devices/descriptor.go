package devices

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Descriptor describes one acquirable device. Descriptors are immutable once
// discovered; decorators and callers work on clones.
type Descriptor struct {
	ID           string            `json:"id"`
	Kind         TransportKind     `json:"transport_kind"`
	DisplayName  string            `json:"display_name"`
	QualityTier  string            `json:"quality_tier"`
	Recommended  bool              `json:"recommended"`
	Specs        map[string]string `json:"specs,omitempty"`
	Source       string            `json:"source"`
	DiscoveredAt time.Time         `json:"discovered_at"`
}

// Clone returns a deep copy of the descriptor.
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}

	c := *d
	c.Specs = maps.Clone(d.Specs)

	return &c
}

// Spec returns the named spec value or "".
func (d *Descriptor) Spec(key string) string {
	if d == nil || d.Specs == nil {
		return ""
	}

	return d.Specs[key]
}

//nolint:gochecknoglobals // uuid namespace for device ids
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/bavix/scanbridge/devices"))

// StableID derives a device id that survives rediscovery of the same hardware.
// The suffix is the full name-based UUID of key.
func StableID(kind TransportKind, key string) string {
	return string(kind) + ":" + uuid.NewSHA1(idNamespace, []byte(key)).String()
}
