package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RowData is a spreadsheet row keyed by header text. Keys keep the
// column order they were added in; a nil value is stored as JSON null.
type RowData struct {
	keys   []string
	values map[string]*string
}

// NewRowData returns an empty row sized for n columns.
func NewRowData(n int) RowData {
	return RowData{
		keys:   make([]string, 0, n),
		values: make(map[string]*string, n),
	}
}

// Set assigns a value. Re-setting an existing key keeps its original position.
func (d *RowData) Set(key string, value *string) {
	if d.values == nil {
		d.values = make(map[string]*string)
	}
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

// Get returns the value stored for key and whether the key exists.
func (d RowData) Get(key string) (*string, bool) {
	value, ok := d.values[key]
	return value, ok
}

// Keys returns the keys in insertion order.
func (d RowData) Keys() []string {
	return append([]string(nil), d.keys...)
}

// Len reports the number of keys.
func (d RowData) Len() int {
	return len(d.keys)
}

// MarshalJSON writes the row as an object with keys in insertion order.
func (d RowData) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodedKey, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(encodedKey)
		buf.WriteByte(':')
		encodedValue, err := json.Marshal(d.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(encodedValue)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object of string or null values, keeping key order.
func (d *RowData) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*d = RowData{}
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("row data must be a JSON object")
	}

	out := NewRowData(0)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("row data key must be a string")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var value *string
		if !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				// Numbers and booleans written by manual edits are kept as text.
				s = string(bytes.TrimSpace(raw))
			}
			value = &s
		}
		out.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*d = out
	return nil
}

// RawRecord is one detection or revision row stored exactly as read.
type RawRecord struct {
	ID       uuid.UUID  `json:"id"`
	UploadID uuid.UUID  `json:"uploadId"`
	Kind     UploadKind `json:"-"`
	RowIndex int        `json:"rowIndex"`
	Data     RowData    `json:"dataJson"`
}

// RecordFilter narrows raw row listings through their projection fields.
type RecordFilter struct {
	UploadID    *uuid.UUID
	Almacen     string
	Monitorista string
	Coordinador string
	MesDesde    *time.Time
	MesHasta    *time.Time
}
