// Package fields maps semantic correlation fields onto the concrete record
// layout of each firewall entity type.
package fields

import (
	"sort"
	"sync"
	"time"

	"github.com/miradorstack/firewall-mcp/internal/models"
)

// SemanticField names an attribute with a consistent meaning across entity types.
type SemanticField = string

// Kind describes how a field's values are compared.
type Kind string

const (
	KindIP     Kind = "ip"
	KindTime   Kind = "time"
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
)

// TimestampField is the semantic field used for temporal windowing and recency.
const TimestampField SemanticField = "timestamp"

// Field is the per-entity-type binding of a semantic field.
type Field struct {
	Path     string   `json:"path"`
	Kind     Kind     `json:"kind"`
	Accessor Accessor `json:"-"`
}

// Info is the read-only description of a field exposed to callers.
type Info struct {
	Name SemanticField `json:"name"`
	Path string        `json:"path"`
	Kind Kind          `json:"kind"`
}

// Catalog is the registry of semantic fields per entity type. Entries can be
// added at runtime but never removed.
type Catalog struct {
	mu      sync.RWMutex
	entries map[models.EntityType]map[SemanticField]Field
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[models.EntityType]map[SemanticField]Field)}
}

// Merge adds fields for entityType. Names already present are kept as they
// are; the number of newly added fields is returned.
func (c *Catalog) Merge(entityType models.EntityType, additions map[SemanticField]Field) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	fields, ok := c.entries[entityType]
	if !ok {
		fields = make(map[SemanticField]Field, len(additions))
		c.entries[entityType] = fields
	}
	added := 0
	for name, field := range additions {
		if _, exists := fields[name]; exists {
			continue
		}
		if field.Accessor == nil {
			field.Accessor = PathAccessor(field.Path, field.Kind)
		}
		fields[name] = field
		added++
	}
	return added
}

func (c *Catalog) lookup(entityType models.EntityType, name SemanticField) (Field, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	field, ok := c.entries[entityType][name]
	return field, ok
}

// FieldPath returns the concrete access path of a semantic field, or false
// when the field does not apply to the entity type.
func (c *Catalog) FieldPath(entityType models.EntityType, name SemanticField) (string, bool) {
	field, ok := c.lookup(entityType, name)
	if !ok {
		return "", false
	}
	return field.Path, true
}

// Has reports whether the semantic field applies to the entity type.
func (c *Catalog) Has(entityType models.EntityType, name SemanticField) bool {
	_, ok := c.lookup(entityType, name)
	return ok
}

// Kind returns the value kind of a semantic field for the entity type.
func (c *Catalog) Kind(entityType models.EntityType, name SemanticField) (Kind, bool) {
	field, ok := c.lookup(entityType, name)
	if !ok {
		return "", false
	}
	return field.Kind, true
}

// ListFields returns the sorted semantic field names known for the entity type.
func (c *Catalog) ListFields(entityType models.EntityType) []SemanticField {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]SemanticField, 0, len(c.entries[entityType]))
	for name := range c.entries[entityType] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns path and kind information for every field of the entity type.
func (c *Catalog) Describe(entityType models.EntityType) []Info {
	c.mu.RLock()
	defer c.mu.RUnlock()

	infos := make([]Info, 0, len(c.entries[entityType]))
	for name, field := range c.entries[entityType] {
		infos = append(infos, Info{Name: name, Path: field.Path, Kind: field.Kind})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// FieldsSharedBy returns the sorted intersection of the field lists of all types.
// An empty input yields an empty result.
func (c *Catalog) FieldsSharedBy(entityTypes ...models.EntityType) []SemanticField {
	if len(entityTypes) == 0 {
		return []SemanticField{}
	}
	shared := c.ListFields(entityTypes[0])
	for _, et := range entityTypes[1:] {
		next := shared[:0:0]
		for _, name := range shared {
			if c.Has(et, name) {
				next = append(next, name)
			}
		}
		shared = next
	}
	return shared
}

// IPFields returns the sorted IP-typed semantic fields of the entity type.
func (c *Catalog) IPFields(entityType models.EntityType) []SemanticField {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]SemanticField, 0)
	for name, field := range c.entries[entityType] {
		if field.Kind == KindIP {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Resolve extracts comparison tokens for a semantic field from record. Unknown
// fields and missing values both return false; neither is an error.
func (c *Catalog) Resolve(entityType models.EntityType, name SemanticField, record models.Record) ([]string, bool) {
	field, ok := c.lookup(entityType, name)
	if !ok || field.Accessor == nil {
		return nil, false
	}
	return field.Accessor(record)
}

// Timestamp resolves the record's timestamp field into a time.
func (c *Catalog) Timestamp(entityType models.EntityType, record models.Record) (time.Time, bool) {
	field, ok := c.lookup(entityType, TimestampField)
	if !ok {
		return time.Time{}, false
	}
	value, ok := Lookup(record, field.Path)
	if !ok {
		return time.Time{}, false
	}
	return ParseTime(value)
}
