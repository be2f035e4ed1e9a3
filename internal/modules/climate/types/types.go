package types

import (
	"bytes"
	"encoding/json"
)

// Station mirrors a station row. NULL columns serialize as null.
type Station struct {
	Station   *string  `json:"station"`
	Name      *string  `json:"name"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Elevation *float64 `json:"elevation"`
}

// PrecipitationRecord serializes as a single-key object {"<date>": prcp}.
type PrecipitationRecord struct {
	Date string
	Prcp *float64
}

func (p PrecipitationRecord) MarshalJSON() ([]byte, error) {
	key, err := json.Marshal(p.Date)
	if err != nil {
		return nil, err
	}
	val, err := json.Marshal(p.Prcp)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(key) + len(val) + 3)
	buf.WriteByte('{')
	buf.Write(key)
	buf.WriteByte(':')
	buf.Write(val)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type TobsRecord struct {
	Date string   `json:"date"`
	Tobs *float64 `json:"tobs"`
}

// TemperatureSummary carries min/avg/max as display strings. A summary over
// no rows has "None" in every field.
type TemperatureSummary struct {
	TMIN string `json:"TMIN"`
	TAVG string `json:"TAVG"`
	TMAX string `json:"TMAX"`
}

// Bounds is the first and last measurement date in the dataset. Both are
// empty when the measurement table has no dated rows.
type Bounds struct {
	First string `json:"first"`
	Last  string `json:"last"`
}
