package metadata

import "sync"

// Column is one physical column as reported by the live backend.
type Column struct {
	Name     string      `json:"name"`
	Physical string      `json:"physical"`
	Type     LogicalType `json:"type"`
}

// TableShape is the authoritative column layout of a dynamic table. It is
// read from storage, never from the form registry.
type TableShape struct {
	Table   string   `json:"table"`
	Columns []Column `json:"columns"`
}

// Column returns the named column, or nil.
func (s *TableShape) Column(name string) *Column {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return &s.Columns[i]
		}
	}
	return nil
}

// HasColumn returns true if the table has a column with the given name.
func (s *TableShape) HasColumn(name string) bool {
	return s.Column(name) != nil
}

// ColumnNames returns all column names in ordinal order.
func (s *TableShape) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// UserColumns returns the columns a caller may write: everything except the
// primary key and the workflow columns.
func (s *TableShape) UserColumns() []Column {
	var cols []Column
	for _, c := range s.Columns {
		if IsReserved(c.Name) {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

// IsWorkflowTable reports whether every reserved column is present.
func (s *TableShape) IsWorkflowTable() bool {
	if !s.HasColumn(ColumnID) {
		return false
	}
	for _, c := range ReservedColumns {
		if !s.HasColumn(c) {
			return false
		}
	}
	return true
}

// ShapeCache memoizes live table shapes by table name. Entries are dropped
// whenever a table is (re)materialized or removed.
type ShapeCache struct {
	mu     sync.RWMutex
	shapes map[string]*TableShape
}

func NewShapeCache() *ShapeCache {
	return &ShapeCache{shapes: make(map[string]*TableShape)}
}

// Get returns the cached shape for table, or nil.
func (c *ShapeCache) Get(table string) *TableShape {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shapes[table]
}

// Put stores a shape under its table name.
func (c *ShapeCache) Put(shape *TableShape) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shapes[shape.Table] = shape
}

// Invalidate forgets the given tables.
func (c *ShapeCache) Invalidate(tables ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tables {
		delete(c.shapes, t)
	}
}
