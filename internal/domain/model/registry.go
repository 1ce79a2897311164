package model

import "slices"

// Registry is the full license collection stored as one document. Version is
// the store's opaque token for the content it was read from; empty means the
// document does not exist yet.
type Registry struct {
	Licenses []License
	Version  string
}

// IndexOf returns the position of the license with the given key, or -1.
func (r Registry) IndexOf(key string) int {
	return slices.IndexFunc(r.Licenses, func(l License) bool {
		return l.Key == key
	})
}

// Find returns the license with the given key.
func (r Registry) Find(key string) (License, bool) {
	i := r.IndexOf(key)
	if i < 0 {
		return License{}, false
	}
	return r.Licenses[i], true
}

// Clone returns a copy whose license slice can be modified without touching r.
func (r Registry) Clone() Registry {
	return Registry{
		Licenses: slices.Clone(r.Licenses),
		Version:  r.Version,
	}
}

// Len returns the number of licenses in the registry.
func (r Registry) Len() int {
	return len(r.Licenses)
}
