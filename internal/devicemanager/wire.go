package devicemanager

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// statusMessage is the payload of {prefix}/manager/{address}/status.
type statusMessage struct {
	Connected bool `json:"connected"`
	RSSI      *int `json:"rssi,omitempty"`
}

// datapointsMessage is the payload of {prefix}/manager/{address}/datapoints.
type datapointsMessage struct {
	Datapoints []wireDatapoint `json:"datapoints"`
}

type wireDatapoint struct {
	ID              int             `json:"id"`
	Type            string          `json:"type"`
	Value           json.RawMessage `json:"value"`
	Timestamp       float64         `json:"timestamp,omitempty"`
	ChangedByDevice bool            `json:"changed_by_device"`
}

// decode converts a wire datapoint into a Datapoint with a normalised value.
func (w wireDatapoint) decode() (Datapoint, error) {
	typ, err := ParseDatapointType(w.Type)
	if err != nil {
		return Datapoint{}, err
	}

	dp := Datapoint{
		ID:              w.ID,
		Type:            typ,
		ChangedByDevice: w.ChangedByDevice,
	}
	if w.Timestamp > 0 {
		dp.Timestamp = time.UnixMilli(int64(math.Round(w.Timestamp * 1000)))
	}

	if len(w.Value) == 0 || bytes.Equal(w.Value, []byte("null")) {
		return dp, nil
	}

	switch typ {
	case DatapointTypeBool:
		var b bool
		if err := json.Unmarshal(w.Value, &b); err != nil {
			return Datapoint{}, fmt.Errorf("%w: dp %d: %w", ErrInvalidPayload, w.ID, err)
		}
		dp.Value = b
	case DatapointTypeValue, DatapointTypeEnum, DatapointTypeBitmap:
		var n json.Number
		if err := json.Unmarshal(w.Value, &n); err != nil {
			return Datapoint{}, fmt.Errorf("%w: dp %d: %w", ErrInvalidPayload, w.ID, err)
		}
		i, err := parseInteger(n)
		if err != nil {
			return Datapoint{}, fmt.Errorf("%w: dp %d: %w", ErrInvalidPayload, w.ID, err)
		}
		dp.Value = i
	case DatapointTypeString:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return Datapoint{}, fmt.Errorf("%w: dp %d: %w", ErrInvalidPayload, w.ID, err)
		}
		dp.Value = s
	case DatapointTypeRaw:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return Datapoint{}, fmt.Errorf("%w: dp %d: %w", ErrInvalidPayload, w.ID, err)
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Datapoint{}, fmt.Errorf("%w: dp %d: raw value is not base64: %w", ErrInvalidPayload, w.ID, err)
		}
		dp.Value = raw
	}

	return dp, nil
}

// parseInteger accepts integers in the int64 range, including whole
// numbers written with a fraction or exponent such as 12.0 or 1e3.
func parseInteger(n json.Number) (int64, error) {
	i, err := n.Int64()
	if err == nil {
		return i, nil
	}
	if !strings.ContainsAny(n.String(), ".eE") {
		return 0, fmt.Errorf("%s is out of range", n)
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("%s is out of range", n)
	}
	// Both bounds are exclusive: float64 cannot tell 2^63 from its neighbours.
	if f != math.Trunc(f) || f <= math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%s is not an int64", n)
	}
	return int64(f), nil
}
