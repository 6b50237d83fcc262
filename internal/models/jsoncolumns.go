package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// The types below persist as JSONB. They exist only at the storage boundary;
// callers treat them as the plain Go collections they wrap.

type StringList []string

type Competitors []Competitor

type CountMap map[string]int

type WeightMap map[string]float64

type SourceList []Source

// Metadata is free-form context attached to a ledger row.
type Metadata map[string]string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

func (l *StringList) Scan(src interface{}) error { return scanJSON(src, l) }

func (c Competitors) Value() (driver.Value, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Competitor(c))
}

func (c *Competitors) Scan(src interface{}) error { return scanJSON(src, c) }

func (m CountMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]int(m))
}

func (m *CountMap) Scan(src interface{}) error { return scanJSON(src, m) }

func (m WeightMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]float64(m))
}

func (m *WeightMap) Scan(src interface{}) error { return scanJSON(src, m) }

func (l SourceList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Source(l))
}

func (l *SourceList) Scan(src interface{}) error { return scanJSON(src, l) }

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]string(m))
}

func (m *Metadata) Scan(src interface{}) error { return scanJSON(src, m) }

func (t TopicClusters) Value() (driver.Value, error) {
	return json.Marshal(t)
}

func (t *TopicClusters) Scan(src interface{}) error { return scanJSON(src, t) }

func scanJSON(src interface{}, dst interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode JSON column: %w", err)
	}
	return nil
}
