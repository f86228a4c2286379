package bytesize

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    ByteSize
		wantErr bool
	}{
		{"1024", 1024, false},
		{"1Ki", KiB, false},
		{"10Gi", 10 * GiB, false},
		{"500Mi", 500 * MiB, false},
		{"100MB", 100 * MB, false},
		{"1.5Gi", ByteSize(1.5 * float64(GiB)), false},
		{"2TB", 2 * TB, false},
		{"  512 MiB ", 512 * MiB, false},
		{"", 0, true},
		{"abc", 0, true},
		{"10Xi", 0, true},
		{"-5Gi", 0, true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error, got %v", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestUnmarshalText(t *testing.T) {
	var b ByteSize
	if err := b.UnmarshalText([]byte("2Gi")); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if b != 2*GiB {
		t.Errorf("expected %d, got %d", 2*GiB, b)
	}

	if err := b.UnmarshalText([]byte("nonsense")); err == nil {
		t.Error("expected error for invalid input")
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		size ByteSize
		want string
	}{
		{512, "512B"},
		{2 * KiB, "2.00KiB"},
		{3 * MiB, "3.00MiB"},
		{10 * GiB, "10.00GiB"},
	}

	for _, tt := range tests {
		if got := tt.size.String(); got != tt.want {
			t.Errorf("String(%d) = %q, want %q", uint64(tt.size), got, tt.want)
		}
	}
}
