package shared

import (
	"slices"
	"strings"
	"testing"
)

func TestStringSlice_ColumnValue(t *testing.T) {
	for _, s := range []StringSlice{nil, {}} {
		if v, err := s.Value(); err != nil || v != "[]" {
			t.Errorf("Value(%#v) = %v, %v; want [], nil", s, v, err)
		}
	}

	v, err := StringSlice{"locate_object", "save_known_face"}.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	var back StringSlice
	if err := back.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !slices.Equal(back, StringSlice{"locate_object", "save_known_face"}) {
		t.Errorf("tool names did not survive the column, got %v", back)
	}
}

func TestJSONColumns_Scan(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		wantNil bool
		wantErr bool
	}{
		{name: "null column", input: nil, wantNil: true},
		{name: "text column", input: `{"object_name":"cup"}`},
		{name: "blob column", input: []byte(`{"object_name":"cup"}`)},
		{name: "integer", input: 7, wantErr: true},
		{name: "garbage", input: "{", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m JSONMap
			err := m.Scan(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Scan error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.wantNil != (m == nil) {
				t.Fatalf("Scan result = %v, wantNil %v", m, tt.wantNil)
			}
			if !tt.wantNil && m["object_name"] != "cup" {
				t.Errorf("object_name = %v, want cup", m["object_name"])
			}
		})
	}
}

func TestJSONMap_EmptyIsObject(t *testing.T) {
	if v, err := JSONMap(nil).Value(); err != nil || v != "{}" {
		t.Errorf("Value() = %v, %v; want {}, nil", v, err)
	}
}

func TestNewID_PrefixedAndUnique(t *testing.T) {
	a, b := NewID("sess_"), NewID("sess_")
	if a == b {
		t.Fatal("two ids collided")
	}
	if !strings.HasPrefix(a, "sess_") || len(a) != len("sess_")+32 || strings.Contains(a, "-") {
		t.Errorf("unexpected id shape %q", a)
	}
}
