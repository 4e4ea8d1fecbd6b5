package canon

import "testing"

func TestJSON_KeyOrderIndependence(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2, "c": 3}
	b := map[string]any{"c": 3, "a": 2, "b": 1}

	ja, err := JSON(a)
	if err != nil {
		t.Fatalf("JSON(a) error: %v", err)
	}
	jb, err := JSON(b)
	if err != nil {
		t.Fatalf("JSON(b) error: %v", err)
	}

	if ja != jb {
		t.Errorf("canonical JSON differs by key insertion order: %q vs %q", ja, jb)
	}
	want := `{"a":2,"b":1,"c":3}`
	if ja != want {
		t.Errorf("JSON() = %q, want %q", ja, want)
	}
}

func TestJSON_DropsNullFields(t *testing.T) {
	v := map[string]any{"a": 1, "b": nil}
	got, err := JSON(v)
	if err != nil {
		t.Fatalf("JSON() error: %v", err)
	}
	if got != `{"a":1}` {
		t.Errorf("JSON() = %q, want null-valued keys dropped", got)
	}
}

func TestJSON_ArrayOrderPreserved(t *testing.T) {
	got, err := JSON([]any{3, 1, 2})
	if err != nil {
		t.Fatalf("JSON() error: %v", err)
	}
	if got != "[3,1,2]" {
		t.Errorf("JSON() = %q, want input order preserved", got)
	}
}

func TestSHA256Hex_RoundTripStable(t *testing.T) {
	v := map[string]any{"x": "y", "n": 42}
	h1, err := SHA256Hex(v)
	if err != nil {
		t.Fatalf("SHA256Hex() error: %v", err)
	}
	h2, err := SHA256Hex(v)
	if err != nil {
		t.Fatalf("SHA256Hex() error: %v", err)
	}
	if h1 != h2 {
		t.Errorf("SHA256Hex() not stable across calls: %q vs %q", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("SHA256Hex() length = %d, want 64 hex chars", len(h1))
	}
}

func TestOffsetDecimalString(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "strips leading zeros", in: "00042", want: "42"},
		{name: "zero stays zero", in: "0000", want: "0"},
		{name: "already minimal", in: "7", want: "7"},
		{name: "rejects negative", in: "-1", wantErr: true},
		{name: "rejects non-digit", in: "12a", wantErr: true},
		{name: "rejects empty", in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OffsetDecimalString(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("OffsetDecimalString(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("OffsetDecimalString(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
