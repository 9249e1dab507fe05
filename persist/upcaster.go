package persist

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EventUpcaster migrates a stored event from an older shape or version to
// the current form. Upcasting happens during deserialization, before
// events reach the aggregate or a query; storage is never rewritten.
//
// Upcasters are applied in the order they are configured, and a single
// event may be upcast multiple times by successive upcasters, so they
// should be ordered from oldest-targeted to newest-targeted.
type EventUpcaster interface {
	// CanUpcast examines an event type and version to decide whether this
	// upcaster applies.
	CanUpcast(eventType, eventVersion string) bool

	// Upcast transforms the serialized event to the newer structure.
	Upcast(event SerializedEvent) SerializedEvent
}

// applyUpcasters offers the event to each upcaster in order.
func applyUpcasters(event SerializedEvent, upcasters []EventUpcaster) SerializedEvent {
	for _, upcaster := range upcasters {
		if upcaster.CanUpcast(event.EventType, event.EventVersion) {
			event = upcaster.Upcast(event)
		}
	}
	return event
}

// SemanticVersion is a parsed major.minor.patch event schema version.
type SemanticVersion struct {
	Major uint32
	Minor uint32
	Patch uint32
}

// ParseSemanticVersion parses "major[.minor[.patch]]"; missing components
// default to 0 and any further components are ignored.
func ParseSemanticVersion(version string) (SemanticVersion, error) {
	parts := strings.Split(version, ".")
	components := [3]uint32{}
	for i := 0; i < len(parts) && i < 3; i++ {
		value, err := strconv.ParseUint(parts[i], 10, 32)
		if err != nil {
			return SemanticVersion{}, fmt.Errorf("invalid semantic version %q: %w", version, err)
		}
		components[i] = uint32(value)
	}
	return SemanticVersion{Major: components[0], Minor: components[1], Patch: components[2]}, nil
}

// Supersedes reports whether v is strictly newer than other. It determines
// whether an upcaster configured at v applies to an event stored at other.
func (v SemanticVersion) Supersedes(other SemanticVersion) bool {
	if other.Major != v.Major {
		return other.Major < v.Major
	}
	if other.Minor != v.Minor {
		return other.Minor < v.Minor
	}
	return other.Patch < v.Patch
}

func (v SemanticVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// UpcastFunc transforms the old structured payload into the new one. It
// must be pure.
type UpcastFunc func(payload json.RawMessage) json.RawMessage

// SemanticVersionEventUpcaster upcasts any stored event with a matching
// event type and a version strictly older than the configured version.
// The resulting event carries the configured version.
type SemanticVersionEventUpcaster struct {
	eventType string
	version   SemanticVersion
	upcast    UpcastFunc
}

// NewSemanticVersionEventUpcaster creates an upcaster for the given event
// type and target version. Panics if eventVersion is not a valid semantic
// version, since this is a configuration error.
func NewSemanticVersionEventUpcaster(eventType, eventVersion string, upcast UpcastFunc) *SemanticVersionEventUpcaster {
	version, err := ParseSemanticVersion(eventVersion)
	if err != nil {
		panic(err)
	}
	return &SemanticVersionEventUpcaster{
		eventType: eventType,
		version:   version,
		upcast:    upcast,
	}
}

// CanUpcast implements EventUpcaster. Events whose version cannot be
// parsed are left alone.
func (u *SemanticVersionEventUpcaster) CanUpcast(eventType, eventVersion string) bool {
	if eventType != u.eventType {
		return false
	}
	version, err := ParseSemanticVersion(eventVersion)
	if err != nil {
		return false
	}
	return u.version.Supersedes(version)
}

// Upcast implements EventUpcaster.
func (u *SemanticVersionEventUpcaster) Upcast(event SerializedEvent) SerializedEvent {
	event.Payload = u.upcast(event.Payload)
	event.EventVersion = u.version.String()
	return event
}
