package bleconn

import "testing"

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Address
		wantErr bool
	}{
		{name: "colon separated lowercase", in: "aa:bb:cc:dd:ee:ff", want: "AA:BB:CC:DD:EE:FF"},
		{name: "dash separated uppercase", in: "AA-BB-CC-DD-EE-FF", want: "AA:BB:CC:DD:EE:FF"},
		{name: "already canonical", in: "11:22:33:44:55:66", want: "11:22:33:44:55:66"},
		{name: "too few octets", in: "AA:BB:CC", wantErr: true},
		{name: "non-hex octet", in: "ZZ:BB:CC:DD:EE:FF", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseAddress(%q) = nil error, want error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseAddress(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAddressToPathAndBack(t *testing.T) {
	addr := Address("AA:BB:CC:DD:EE:FF")
	path := AddressToPath(addr, "hci0")
	const want = "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF"
	if string(path) != want {
		t.Fatalf("AddressToPath() = %q, want %q", path, want)
	}

	if got := AdapterOfPath(path); got != "hci0" {
		t.Errorf("AdapterOfPath() = %q, want hci0", got)
	}

	back, err := AddressOfPath(path)
	if err != nil {
		t.Fatalf("AddressOfPath() unexpected error: %v", err)
	}
	if back != addr {
		t.Errorf("AddressOfPath() = %q, want %q", back, addr)
	}
}

func TestSiblingPathsCoversAllAdapters(t *testing.T) {
	path := AddressToPath("AA:BB:CC:DD:EE:FF", "hci3")
	siblings := siblingPaths(path)
	if len(siblings) != maxAdapterIndex+1 {
		t.Fatalf("siblingPaths() returned %d paths, want %d", len(siblings), maxAdapterIndex+1)
	}
	seen := make(map[string]bool)
	for _, s := range siblings {
		seen[AdapterOfPath(s)] = true
	}
	for i := 0; i <= maxAdapterIndex; i++ {
		want := "hci" + string(rune('0'+i))
		if !seen[want] {
			t.Errorf("siblingPaths() missing adapter %s", want)
		}
	}
}
