package aeroapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/sakif/highest-aircraft/internal/model"
)

// decodeSearchResponse turns an AeroAPI /flights/search body into flights.
//
// TWO KINDS OF "NOTHING":
//   - the "flights" key is missing or null → no matches, empty result
//   - the body is not a JSON object, or "flights" is not an array → malformed,
//     returned as an error
//
// Inside the array parsing is best-effort. A field that is absent or has the
// wrong shape becomes nil on that flight; only a missing or non-string
// "ident" drops the record.
func decodeSearchResponse(body []byte) ([]model.Flight, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	if top == nil {
		return nil, fmt.Errorf("response is not a JSON object")
	}

	raw, ok := top["flights"]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return []model.Flight{}, nil
	}

	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf(`"flights" is not an array: %w`, err)
	}

	flights := make([]model.Flight, 0, len(records))
	for _, rec := range records {
		if f, ok := decodeFlight(rec); ok {
			flights = append(flights, f)
		}
	}
	return flights, nil
}

func decodeFlight(raw json.RawMessage) (model.Flight, bool) {
	obj := asObject(raw)
	if obj == nil {
		return model.Flight{}, false
	}

	ident := asString(obj["ident"])
	if ident == nil || strings.TrimSpace(*ident) == "" {
		return model.Flight{}, false
	}

	f := model.Flight{Ident: strings.TrimSpace(*ident)}

	if pos := asObject(obj["last_position"]); pos != nil {
		f.Altitude = asInt(pos["altitude"])
		f.Groundspeed = asInt(pos["groundspeed"])
	}

	f.Origin = airportLabel(obj["origin"])
	f.Destination = airportLabel(obj["destination"])

	return f, true
}

// airportLabel renders an airport object as "Name, City [ICAO]", using the
// parts that are present. An airport with none of them is unknown.
func airportLabel(raw json.RawMessage) *string {
	obj := asObject(raw)
	if obj == nil {
		return nil
	}

	var parts []string
	if name := asString(obj["name"]); name != nil && *name != "" {
		parts = append(parts, *name)
	}
	if city := asString(obj["city"]); city != nil && *city != "" {
		parts = append(parts, *city)
	}
	label := strings.Join(parts, ", ")

	code := asString(obj["code_icao"])
	if code == nil || *code == "" {
		code = asString(obj["code"])
	}
	if code != nil && *code != "" {
		if label == "" {
			label = "[" + *code + "]"
		} else {
			label += " [" + *code + "]"
		}
	}

	if label == "" {
		return nil
	}
	return &label
}

func asObject(raw json.RawMessage) map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj
}

func asString(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

// asInt accepts a JSON integer. Strings, fractions and numbers outside the
// int32 range are the wrong shape and yield nil.
func asInt(raw json.RawMessage) *int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || (raw[0] != '-' && (raw[0] < '0' || raw[0] > '9')) {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil
	}
	i, err := n.Int64()
	if err != nil || i > math.MaxInt32 || i < math.MinInt32 {
		return nil
	}
	v := int(i)
	return &v
}
