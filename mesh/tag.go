package mesh

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// DataType represents the precision of tag data
type DataType int

const (
	Float32 DataType = iota + 1
	Float64
	INT32
	INT64
)

// SizeOfType returns the byte size of one scalar of a data type.
func SizeOfType(dt DataType) int {
	switch dt {
	case Float32, INT32:
		return 4
	case Float64, INT64:
		return 8
	default:
		panic(fmt.Sprintf("mesh: unknown data type %d", dt))
	}
}

// StorageKind selects how a tag lays out its values.
type StorageKind int

const (
	// TagDense backs values with per-dimension arrays indexed by entity,
	// suited to tags set on most entities.
	TagDense StorageKind = iota + 1
	// TagSparse backs values with a per-handle map, suited to tags set on
	// few entities.
	TagSparse
)

// TagSpec declares a tag schema: value type, scalars per entity, storage
// layout and the entry every unset entity reads back. A nil Default means
// an all-zero entry.
type TagSpec struct {
	Name    string
	Type    DataType
	Width   int
	Storage StorageKind
	Default []byte
}

// FillEntry builds a tag entry of the given shape with every scalar set
// to v, converted to the target type.
func FillEntry(dt DataType, width int, v float64) []byte {
	sz := SizeOfType(dt)
	out := make([]byte, width*sz)
	for i := 0; i < width; i++ {
		b := out[i*sz:]
		switch dt {
		case Float32:
			binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
		case Float64:
			binary.LittleEndian.PutUint64(b, math.Float64bits(v))
		case INT32:
			binary.LittleEndian.PutUint32(b, uint32(int32(v)))
		case INT64:
			binary.LittleEndian.PutUint64(b, uint64(int64(v)))
		}
	}
	return out
}

// Tag is a named typed per-entity attribute. Values live as raw
// little-endian entries of Width scalars; entities never written read back
// the default entry. Exchange moves entries as opaque bytes, so layout is
// identical on every rank.
type Tag struct {
	store *Store
	name  string
	dtype DataType
	width int
	kind  StorageKind
	def   []byte

	dense  [4][]byte
	sparse map[EntityHandle][]byte
}

// TagStore is the per-rank tag database attached to a Store.
type TagStore struct {
	store *Store
	tags  map[string]*Tag
}

func newTagStore(s *Store) *TagStore {
	return &TagStore{store: s, tags: make(map[string]*Tag)}
}

// Create declares a tag, returning the existing one when the name is
// already declared with an identical schema. Re-declaring with a different
// type, width or storage fails with ErrTagMismatch.
func (ts *TagStore) Create(spec TagSpec) (*Tag, error) {
	if spec.Width < 1 {
		return nil, fmt.Errorf("mesh: tag %q: width %d below 1", spec.Name, spec.Width)
	}
	// Schema comparison comes before default validation: a re-declare that
	// disagrees with the existing schema is a tag mismatch no matter what
	// default it carries.
	if t, ok := ts.tags[spec.Name]; ok {
		if t.dtype != spec.Type || t.width != spec.Width || t.kind != spec.Storage {
			return nil, fmt.Errorf("mesh: tag %q redeclared as type=%d width=%d storage=%d, have type=%d width=%d storage=%d: %w",
				spec.Name, spec.Type, spec.Width, spec.Storage, t.dtype, t.width, t.kind, ErrTagMismatch)
		}
		return t, nil
	}
	entrySize := spec.Width * SizeOfType(spec.Type)
	if spec.Default != nil && len(spec.Default) != entrySize {
		return nil, fmt.Errorf("mesh: tag %q: default entry is %d bytes, want %d: %w",
			spec.Name, len(spec.Default), entrySize, ErrShapeMismatch)
	}
	def := make([]byte, entrySize)
	copy(def, spec.Default)
	t := &Tag{
		store: ts.store,
		name:  spec.Name,
		dtype: spec.Type,
		width: spec.Width,
		kind:  spec.Storage,
		def:   def,
	}
	if spec.Storage == TagSparse {
		t.sparse = make(map[EntityHandle][]byte)
	}
	ts.tags[spec.Name] = t
	return t, nil
}

// Get looks up a tag by name.
func (ts *TagStore) Get(name string) (*Tag, bool) {
	t, ok := ts.tags[name]
	return t, ok
}

// Names returns all declared tag names in sorted order.
func (ts *TagStore) Names() []string {
	out := make([]string, 0, len(ts.tags))
	for name := range ts.tags {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Name returns the tag's name.
func (t *Tag) Name() string { return t.name }

// Type returns the tag's scalar type.
func (t *Tag) Type() DataType { return t.dtype }

// Width returns the number of scalars per entity.
func (t *Tag) Width() int { return t.width }

// EntrySize returns the byte size of one entity's entry.
func (t *Tag) EntrySize() int { return t.width * SizeOfType(t.dtype) }

// entry returns the stored entry for h, or nil when unset.
func (t *Tag) entry(h EntityHandle) []byte {
	if t.kind == TagSparse {
		return t.sparse[h]
	}
	es := t.EntrySize()
	off := h.Index() * es
	d := t.dense[h.Dim()]
	if off+es > len(d) {
		return nil
	}
	return d[off : off+es]
}

// setEntry stores raw for h, growing dense storage with default entries.
func (t *Tag) setEntry(h EntityHandle, raw []byte) {
	es := t.EntrySize()
	if t.kind == TagSparse {
		e, ok := t.sparse[h]
		if !ok {
			e = make([]byte, es)
			t.sparse[h] = e
		}
		copy(e, raw)
		return
	}
	dim := h.Dim()
	need := (h.Index() + 1) * es
	for len(t.dense[dim]) < need {
		t.dense[dim] = append(t.dense[dim], t.def...)
	}
	copy(t.dense[dim][h.Index()*es:need], raw)
}

// Entry returns a copy of the entry stored for h, the default when unset.
func (t *Tag) Entry(h EntityHandle) []byte {
	out := make([]byte, t.EntrySize())
	if e := t.entry(h); e != nil {
		copy(out, e)
	} else {
		copy(out, t.def)
	}
	return out
}

// AppendEntry appends h's entry (default when unset) to dst and returns
// the extended slice. Message packing uses this to avoid per-entity
// allocations.
func (t *Tag) AppendEntry(dst []byte, h EntityHandle) []byte {
	if e := t.entry(h); e != nil {
		return append(dst, e...)
	}
	return append(dst, t.def...)
}

// SetEntry stores one raw entry for h.
func (t *Tag) SetEntry(h EntityHandle, raw []byte) error {
	if len(raw) != t.EntrySize() {
		return fmt.Errorf("mesh: tag %q: entry is %d bytes, want %d: %w",
			t.name, len(raw), t.EntrySize(), ErrShapeMismatch)
	}
	t.setEntry(h, raw)
	return nil
}

// SetValues writes float64 values over a set, width scalars per entity in
// set order. The tag must be Float64 typed.
func (t *Tag) SetValues(set *EntitySet, vals []float64) error {
	if t.dtype != Float64 {
		return fmt.Errorf("mesh: tag %q: float64 access on type %d: %w", t.name, t.dtype, ErrTagMismatch)
	}
	if len(vals) != set.Len()*t.width {
		return fmt.Errorf("mesh: tag %q: %d values for %d entities of width %d: %w",
			t.name, len(vals), set.Len(), t.width, ErrShapeMismatch)
	}
	raw := make([]byte, t.EntrySize())
	for i, h := range set.Handles() {
		for j := 0; j < t.width; j++ {
			binary.LittleEndian.PutUint64(raw[j*8:], math.Float64bits(vals[i*t.width+j]))
		}
		t.setEntry(h, raw)
	}
	return nil
}

// Values reads float64 values over a set, width scalars per entity in set
// order, defaults for unset entities. The tag must be Float64 typed.
func (t *Tag) Values(set *EntitySet) ([]float64, error) {
	if t.dtype != Float64 {
		return nil, fmt.Errorf("mesh: tag %q: float64 access on type %d: %w", t.name, t.dtype, ErrTagMismatch)
	}
	out := make([]float64, set.Len()*t.width)
	for i, h := range set.Handles() {
		e := t.entry(h)
		if e == nil {
			e = t.def
		}
		for j := 0; j < t.width; j++ {
			out[i*t.width+j] = math.Float64frombits(binary.LittleEndian.Uint64(e[j*8:]))
		}
	}
	return out, nil
}

// SetInt32Values writes int32 values over a set. The tag must be INT32
// typed.
func (t *Tag) SetInt32Values(set *EntitySet, vals []int32) error {
	if t.dtype != INT32 {
		return fmt.Errorf("mesh: tag %q: int32 access on type %d: %w", t.name, t.dtype, ErrTagMismatch)
	}
	if len(vals) != set.Len()*t.width {
		return fmt.Errorf("mesh: tag %q: %d values for %d entities of width %d: %w",
			t.name, len(vals), set.Len(), t.width, ErrShapeMismatch)
	}
	raw := make([]byte, t.EntrySize())
	for i, h := range set.Handles() {
		for j := 0; j < t.width; j++ {
			binary.LittleEndian.PutUint32(raw[j*4:], uint32(vals[i*t.width+j]))
		}
		t.setEntry(h, raw)
	}
	return nil
}

// Int32Values reads int32 values over a set. The tag must be INT32 typed.
func (t *Tag) Int32Values(set *EntitySet) ([]int32, error) {
	if t.dtype != INT32 {
		return nil, fmt.Errorf("mesh: tag %q: int32 access on type %d: %w", t.name, t.dtype, ErrTagMismatch)
	}
	out := make([]int32, set.Len()*t.width)
	for i, h := range set.Handles() {
		e := t.entry(h)
		if e == nil {
			e = t.def
		}
		for j := 0; j < t.width; j++ {
			out[i*t.width+j] = int32(binary.LittleEndian.Uint32(e[j*4:]))
		}
	}
	return out, nil
}
