package devicemanager

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestWireDatapoint_DecodeIntegers(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		value   string
		want    int64
		wantErr bool
	}{
		{"plain", "value", `812`, 812, false},
		{"negative", "value", `-40`, -40, false},
		{"whole with fraction", "enum", `3.0`, 3, false},
		{"exponent", "bitmap", `1e3`, 1000, false},
		{"int64 max", "value", `9223372036854775807`, math.MaxInt64, false},
		{"int64 min", "value", `-9223372036854775808`, math.MinInt64, false},
		{"above int64", "value", `9223372036854775808`, 0, true},
		{"below int64", "value", `-9223372036854775809`, 0, true},
		{"huge exponent", "bitmap", `1e300`, 0, true},
		{"fractional", "value", `2.5`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := wireDatapoint{ID: 2, Type: tt.typ, Value: json.RawMessage(tt.value)}
			dp, err := w.decode()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPayload) {
					t.Fatalf("decode() error = %v, want ErrInvalidPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode() error = %v", err)
			}
			if dp.Value != tt.want {
				t.Errorf("Value = %#v, want %d", dp.Value, tt.want)
			}
		})
	}
}
