package pgline

import "github.com/pgline/pgline/pgtype"

// ResultSet is one RowDescription plus the DataRows that followed it.
// Every row has exactly len(Fields) values.
type ResultSet struct {
	Fields []pgtype.FieldDesc
	Rows   [][]any
}

// Result aggregates the server's replies to one query: command tags and
// result sets, in server order. A multi-statement simple query yields
// one tag per statement and one set per row-returning statement.
type Result struct {
	tags []string
	sets []*ResultSet
}

// Tags returns all command tags in order.
func (r *Result) Tags() []string { return r.tags }

// Tag returns the first command tag, or "" when none was produced.
func (r *Result) Tag() string {
	if len(r.tags) == 0 {
		return ""
	}
	return r.tags[0]
}

// Sets returns all result sets in order.
func (r *Result) Sets() []*ResultSet { return r.sets }

// Fields returns the field descriptions of the first result set.
func (r *Result) Fields() []pgtype.FieldDesc {
	if len(r.sets) == 0 {
		return nil
	}
	return r.sets[0].Fields
}

// Rows returns the rows of the first result set.
func (r *Result) Rows() [][]any {
	if len(r.sets) == 0 {
		return nil
	}
	return r.sets[0].Rows
}

// First returns the first value of the first row, or the NULL sentinel
// when the result is empty.
func (r *Result) First() any {
	rows := r.Rows()
	if len(rows) == 0 || len(rows[0]) == 0 {
		return pgtype.Null
	}
	return rows[0][0]
}

func (r *Result) addTag(tag string) { r.tags = append(r.tags, tag) }

func (r *Result) beginSet(fields []pgtype.FieldDesc) *ResultSet {
	set := &ResultSet{Fields: fields}
	r.sets = append(r.sets, set)
	return set
}

func (r *Result) currentSet() *ResultSet {
	if len(r.sets) == 0 {
		return nil
	}
	return r.sets[len(r.sets)-1]
}
