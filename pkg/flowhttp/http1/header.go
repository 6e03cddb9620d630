package http1

import "strings"

// Header is a case-insensitive, case-preserving, insertion-ordered set of
// HTTP header fields. Lookups are case-insensitive; Values() and iteration
// preserve the case the field was added with and the order fields were
// first seen, matching the behavior relied on by request replay and
// response header inspection in spec.md §3/§6.
//
// Grounded on the case-insensitive Add/Get contract of
// MiraiMindz-watt/shockwave's pkg/shockwave/client/headers_compact.go,
// reimplemented with a plain slice+map instead of that file's fixed
// [1024]byte/[32]uint16 inline-storage scheme: flowhttp's headers are not
// on the server accept hot path shockwave optimizes for, so the simpler
// representation is the idiomatic choice here.
type Header struct {
	order []string            // lowercase names, first-seen order
	index map[string][]string // lowercase name -> values, in add order
	cased map[string]string   // lowercase name -> first-seen cased name
}

// NewHeader returns an empty Header ready to use.
func NewHeader() *Header {
	return &Header{
		index: make(map[string][]string),
		cased: make(map[string]string),
	}
}

func key(name string) string { return strings.ToLower(name) }

// Add appends a value under name, preserving the case of the first Add for
// that name and recording insertion order for new names.
func (h *Header) Add(name, value string) {
	k := key(name)
	if _, ok := h.cased[k]; !ok {
		h.cased[k] = name
		h.order = append(h.order, k)
	}
	h.index[k] = append(h.index[k], value)
}

// Set replaces all values for name with value, preserving prior insertion
// position if name already existed.
func (h *Header) Set(name, value string) {
	k := key(name)
	if _, ok := h.cased[k]; !ok {
		h.cased[k] = name
		h.order = append(h.order, k)
	}
	h.index[k] = []string{value}
}

// Get returns the first value for name, or "" if absent.
func (h *Header) Get(name string) string {
	vs := h.index[key(name)]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// Values returns all values for name in the order they were added.
func (h *Header) Values(name string) []string {
	return h.index[key(name)]
}

// Has reports whether name has any value set.
func (h *Header) Has(name string) bool {
	_, ok := h.index[key(name)]
	return ok
}

// Del removes all values for name.
func (h *Header) Del(name string) {
	k := key(name)
	if _, ok := h.cased[k]; !ok {
		return
	}
	delete(h.index, k)
	delete(h.cased, k)
	for i, cand := range h.order {
		if cand == k {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Names returns header names in first-seen order, using the case they were
// first added with.
func (h *Header) Names() []string {
	names := make([]string, len(h.order))
	for i, k := range h.order {
		names[i] = h.cased[k]
	}
	return names
}

// Clone returns a deep copy, used when a redirect must carry forward (or
// selectively strip) the previous request's headers.
func (h *Header) Clone() *Header {
	if h == nil {
		return NewHeader()
	}
	out := NewHeader()
	for _, k := range h.order {
		out.order = append(out.order, k)
		out.cased[k] = h.cased[k]
		vs := make([]string, len(h.index[k]))
		copy(vs, h.index[k])
		out.index[k] = vs
	}
	return out
}
