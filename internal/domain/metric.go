package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Metric is a computed value that can also be undefined when the run did not
// contain enough data to compute it. Undefined is a legitimate result state
// and must stay distinguishable from a computed zero, so it marshals as null.
type Metric struct {
	Value   float64 `json:"-"`
	Defined bool    `json:"-"`
}

func DefinedMetric(v float64) Metric {
	return Metric{Value: v, Defined: true}
}

func UndefinedMetric() Metric {
	return Metric{}
}

func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

func (m *Metric) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = Metric{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Metric{Value: v, Defined: true}
	return nil
}

func (m Metric) String() string {
	if !m.Defined {
		return "undefined"
	}
	return fmt.Sprintf("%.4f", m.Value)
}
