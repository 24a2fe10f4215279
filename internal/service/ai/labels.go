package ai

// LabelTable maps classifier label ids to display names. It is read-only after construction.
type LabelTable struct {
	names map[int]string
}

// NewLabelTable copies names into a new table.
func NewLabelTable(names map[int]string) LabelTable {
	copied := make(map[int]string, len(names))
	for id, name := range names {
		copied[id] = name
	}
	return LabelTable{names: copied}
}

// Name returns the label for id.
func (t LabelTable) Name(id int) (string, bool) {
	name, ok := t.names[id]
	return name, ok
}

func (t LabelTable) Len() int {
	return len(t.names)
}
