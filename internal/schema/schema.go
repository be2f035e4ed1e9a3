// Package schema holds the fixed shape of the climate store: the two tables the
// service reads, their queryable columns, the embedded DDL that creates them,
// and the startup check that the opened database actually matches.
package schema

// Kind is the storage class a column is read back as.
type Kind int

const (
	KindText Kind = iota
	KindReal
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindReal:
		return "real"
	default:
		return "unknown"
	}
}

type Field struct {
	Name string
	Kind Kind
}

type Table struct {
	Name   string
	Fields []Field
}

// Field looks up a queryable column by name.
func (t Table) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames returns the queryable columns in declaration order.
func (t Table) FieldNames() []string {
	out := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		out[i] = f.Name
	}
	return out
}

var Station = Table{
	Name: "station",
	Fields: []Field{
		{Name: "station", Kind: KindText},
		{Name: "name", Kind: KindText},
		{Name: "latitude", Kind: KindReal},
		{Name: "longitude", Kind: KindReal},
		{Name: "elevation", Kind: KindReal},
	},
}

var Measurement = Table{
	Name: "measurement",
	Fields: []Field{
		{Name: "station", Kind: KindText},
		{Name: "date", Kind: KindText},
		{Name: "prcp", Kind: KindReal},
		{Name: "tobs", Kind: KindReal},
	},
}

// Tables lists every table the service reads.
var Tables = []Table{Station, Measurement}

// Lookup resolves a table by name.
func Lookup(name string) (Table, bool) {
	for _, t := range Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}
