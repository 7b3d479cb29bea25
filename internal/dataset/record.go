package dataset

import (
	"bytes"
	"encoding/json"
)

// Record is one row rendered as a JSON object that keeps column order
type Record struct {
	Keys   []string
	Values []interface{}
}

// Record returns row i, with nulls replaced by nullValue when it is non-nil
func (d *Dataset) Record(i int, nullValue interface{}) Record {
	rec := Record{Keys: d.ColumnNames(), Values: make([]interface{}, d.Width())}
	for j, v := range d.Rows[i] {
		if v.IsNull() && nullValue != nil {
			rec.Values[j] = nullValue
			continue
		}
		if v.IsNumber() && d.Columns[j].Type == TypeObject {
			rec.Values[j] = v.Format(TypeObject)
			continue
		}
		rec.Values[j] = v.Interface()
	}
	return rec
}

// MarshalJSON writes the record keys in column order
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.Keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
