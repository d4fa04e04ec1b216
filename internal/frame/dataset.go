package frame

// Dataset is the input of an analysis, resolved once at ingestion into one of
// two variants: a plain table, or a table the caller has already partitioned
// by some columns outside the engine.
type Dataset interface {
	// Table returns the underlying, unpartitioned table.
	Table() *Table

	// GroupColumns returns the pre-partition columns, or nil for a plain
	// dataset.
	GroupColumns() []string

	dataset()
}

// PlainDataset is a dataset with no pre-existing partition.
type PlainDataset struct {
	table *Table
}

// PreGroupedDataset is a dataset already partitioned by Columns.
type PreGroupedDataset struct {
	table   *Table
	columns []string
}

// Plain wraps a table as a plain dataset.
func Plain(t *Table) *PlainDataset {
	return &PlainDataset{table: t}
}

// PreGrouped wraps a table partitioned by cols.
func PreGrouped(t *Table, cols ...string) *PreGroupedDataset {
	return &PreGroupedDataset{table: t, columns: append([]string(nil), cols...)}
}

// FromGrouped records a grouped table as a pre-grouped dataset.
func FromGrouped(g *Grouped) *PreGroupedDataset {
	return PreGrouped(g.Table(), g.Keys()...)
}

// Table returns the dataset's rows. A nil dataset has no table.
func (d *PlainDataset) Table() *Table {
	if d == nil {
		return nil
	}
	return d.table
}

func (d *PlainDataset) GroupColumns() []string { return nil }
func (d *PlainDataset) dataset()               {}

func (d *PreGroupedDataset) Table() *Table {
	if d == nil {
		return nil
	}
	return d.table
}

func (d *PreGroupedDataset) GroupColumns() []string {
	if d == nil {
		return nil
	}
	return append([]string(nil), d.columns...)
}
func (d *PreGroupedDataset) dataset() {}
