package opfs

import "fmt"

// Backend names persisted in settings and resolved by FromSetting.
const (
	BackendPersistent = "opfs"
	BackendMemory     = "memory"
)

// FromSetting builds the concrete adapter named by a persisted setting.
// Switching backends at runtime requires discarding and rebuilding the
// project mirror; the adapter itself is never mutated in place.
func FromSetting(name, root string, opts Options) (*Storage, error) {
	switch name {
	case BackendPersistent, "":
		return New(root, opts), nil
	case BackendMemory:
		return NewMemory(opts), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", name)
	}
}
