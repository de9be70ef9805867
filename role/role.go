// Package role decides whether the local process may mutate a shared ledger
// session. Exactly one device class is the designated editor; every other
// device is a read-only viewer. The decision is purely local, never
// replicated, and is consulted before every mutating operation.
package role

import (
	"errors"
	"fmt"
)

// ErrAccessDenied indicates an editor role claimed on a disallowed device.
// Fatal to the attempted operation; the process should carry on as a viewer.
var ErrAccessDenied = errors.New("access denied")

// DeviceClass is the externally supplied classification of the local device.
type DeviceClass string

const (
	Laptop  DeviceClass = "laptop"
	Android DeviceClass = "android"
	IPhone  DeviceClass = "iphone"
)

// ParseDeviceClass converts a raw configuration string into a DeviceClass.
func ParseDeviceClass(s string) (DeviceClass, error) {
	switch DeviceClass(s) {
	case Laptop, Android, IPhone:
		return DeviceClass(s), nil
	default:
		return "", fmt.Errorf("unknown device class %q", s)
	}
}

// Platform carries the raw platform signals alongside the declared class.
// Handheld is derived from the platform itself, not from the declared class,
// so the two can disagree.
type Platform struct {
	OS       string
	Handheld bool
}

// Resolver answers the single question "may this process write".
type Resolver struct {
	class    DeviceClass
	canWrite bool
}

// NewResolver resolves the local role from the declared device class and the
// raw platform signal. A declared editor class on a handheld platform is a
// spoofed role claim and fails with ErrAccessDenied instead of granting
// write capability.
func NewResolver(class DeviceClass, platform Platform, editor DeviceClass) (*Resolver, error) {
	if class == editor && platform.Handheld {
		return nil, fmt.Errorf("%w: %s role claimed on handheld platform %q", ErrAccessDenied, class, platform.OS)
	}
	return &Resolver{class: class, canWrite: class == editor}, nil
}

// CanWrite reports whether the local process is the session's editor.
func (r *Resolver) CanWrite() bool { return r.canWrite }

// Class returns the declared device class the resolver was built from.
func (r *Resolver) Class() DeviceClass { return r.class }
