package descriptor

import "testing"

func TestHostPort(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]string
		want   string
	}{
		{"lowercase keys", map[string]string{"host": "localhost", "port": "5005"}, "localhost:5005"},
		{"uppercase keys", map[string]string{"HOST": "10.0.0.2", "PORT": "8000"}, "10.0.0.2:8000"},
		{"ipv6", map[string]string{"host": "::1", "port": "5005"}, "[::1]:5005"},
		{"missing port", map[string]string{"host": "box"}, "box:?"},
		{"missing host", map[string]string{"port": "5005"}, "?:5005"},
		{"blank values", map[string]string{"host": " ", "port": ""}, ""},
		{"nil params", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HostPort("", tt.params)
			if got.Address != tt.want {
				t.Errorf("Address = %q, want %q", got.Address, tt.want)
			}
			if got.Name != "" {
				t.Errorf("Name = %q, want empty", got.Name)
			}
		})
	}
}

func TestDescriptorString(t *testing.T) {
	tests := []struct {
		d    Descriptor
		want string
	}{
		{Descriptor{Address: "localhost:5005"}, "localhost:5005"},
		{Descriptor{Name: "api", Address: "localhost:5005"}, "api (localhost:5005)"},
		{Descriptor{Name: "api"}, "api"},
		{Descriptor{}, ""},
	}

	for _, tt := range tests {
		if got := tt.d.String(); got != tt.want {
			t.Errorf("%#v.String() = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestLookup(t *testing.T) {
	params := map[string]string{"Host": "a", "port": "1"}

	if v, ok := Lookup(params, "host"); !ok || v != "a" {
		t.Errorf("Lookup(host) = %q, %v", v, ok)
	}
	if v, ok := Lookup(params, "port"); !ok || v != "1" {
		t.Errorf("Lookup(port) = %q, %v", v, ok)
	}
	if _, ok := Lookup(params, "pid"); ok {
		t.Error("expected pid to be missing")
	}
}
