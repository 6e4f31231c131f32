package usb

import "testing"

func TestParseID(t *testing.T) {
	tests := []struct {
		in   string
		want uint16
		ok   bool
	}{
		{"0403", 0x0403, true},
		{"0x10C4", 0x10c4, true},
		{" ea60 ", 0xea60, true},
		{"", 0, false},
		{"xyz", 0, false},
		{"12345", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseID(tt.in)
			if ok != tt.ok || (ok && uint16(got) != tt.want) {
				t.Errorf("ParseID(%q) = %v, %v; want %#04x, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestDescribeKnownBridge(t *testing.T) {
	db := NewDeviceDatabase()

	if got := db.Describe(0x0403, 0x6001); got != "FTDI FT232R USB UART" {
		t.Errorf("unexpected description %q", got)
	}
	if got := db.Describe(0x0403, 0xFFFF); got != "FTDI" {
		t.Errorf("unexpected description %q", got)
	}
	if !db.IsKnownVendor(0x1A86) {
		t.Error("expected WCH to be known")
	}
	if db.IsKnownVendor(0x0001) && db.GetVendorInfo(0x0001) == nil {
		t.Error("inconsistent vendor lookup")
	}
}
