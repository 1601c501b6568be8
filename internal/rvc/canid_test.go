package rvc

import (
	"errors"
	"testing"
)

func TestParseArbitrationID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want ArbitrationID
		dgn  string
	}{
		{
			name: "dimmer status from 0x9C",
			id:   "19FEDA9C",
			want: ArbitrationID{Priority: 6, DGN: 0x1FEDA, Source: 0x9C},
			dgn:  "1FEDA",
		},
		{
			name: "dimmer command from bridge",
			id:   "19FEDB63",
			want: ArbitrationID{Priority: 6, DGN: 0x1FEDB, Source: 0x63},
			dgn:  "1FEDB",
		},
		{
			name: "low DGN zero padded",
			id:   "18EEFF63",
			want: ArbitrationID{Priority: 6, DGN: 0x0EEFF, Source: 0x63},
			dgn:  "0EEFF",
		},
		{
			name: "zero",
			id:   "0",
			want: ArbitrationID{},
			dgn:  "00000",
		},
		{
			name: "bits above 29 ignored",
			id:   "F9FEDA9C",
			want: ArbitrationID{Priority: 6, DGN: 0x1FEDA, Source: 0x9C},
			dgn:  "1FEDA",
		},
		{
			name: "lower case hex",
			id:   "19feda9c",
			want: ArbitrationID{Priority: 6, DGN: 0x1FEDA, Source: 0x9C},
			dgn:  "1FEDA",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArbitrationID(tt.id)
			if err != nil {
				t.Fatalf("ParseArbitrationID(%q) error: %v", tt.id, err)
			}
			if got != tt.want {
				t.Errorf("ParseArbitrationID(%q) = %+v, want %+v", tt.id, got, tt.want)
			}
			if got.DGN.String() != tt.dgn {
				t.Errorf("DGN = %q, want %q", got.DGN.String(), tt.dgn)
			}
		})
	}
}

func TestParseArbitrationIDInvalid(t *testing.T) {
	for _, id := range []string{"", "XYZ", "123456789", "19FE DA9C"} {
		if _, err := ParseArbitrationID(id); !errors.Is(err, ErrInvalidCANID) {
			t.Errorf("ParseArbitrationID(%q) error = %v, want ErrInvalidCANID", id, err)
		}
	}
}

func TestDGNFromIDIsStable(t *testing.T) {
	ids := []string{"19FEDA9C", "18FFFD42", "1DFFFF00", "0CFEDB63", "1FFFFFFF", "1"}
	for _, id := range ids {
		first, err := DGNFromID(id)
		if err != nil {
			t.Fatalf("DGNFromID(%q) error: %v", id, err)
		}
		second, err := DGNFromID(id)
		if err != nil {
			t.Fatalf("DGNFromID(%q) error: %v", id, err)
		}
		if first != second {
			t.Errorf("DGNFromID(%q) not stable: %q then %q", id, first, second)
		}
		if len(first) != 5 {
			t.Errorf("DGNFromID(%q) = %q, want 5 hex digits", id, first)
		}
	}
}

func TestArbitrationIDRoundTrip(t *testing.T) {
	for _, raw := range []uint32{0x19FEDA9C, 0x19FEDB63, 0x00000001, 0x1FFFFFFF, 0x0C0EEF00} {
		a := DecomposeID(raw)
		if a.Uint32() != raw {
			t.Errorf("DecomposeID(%#x).Uint32() = %#x", raw, a.Uint32())
		}
	}
}

func TestDataPageBitNotInDGN(t *testing.T) {
	a := DecomposeID(0x1FFFFFFF)
	if !a.DataPage {
		t.Error("DataPage = false, want true for bit 25 set")
	}
	if a.DGN != 0x1FFFF || a.Priority != 7 || a.Source != 0xFF {
		t.Errorf("DecomposeID(0x1FFFFFFF) = %+v", a)
	}

	// Same DGN with and without bit 25.
	if DecomposeID(0x1BFEDA9C).DGN != DecomposeID(0x19FEDA9C).DGN {
		t.Error("bit 25 leaked into the DGN")
	}
	if DecomposeID(0x19FEDA9C).DataPage {
		t.Error("DataPage = true, want false for bit 25 clear")
	}
}

func TestCommandIDString(t *testing.T) {
	if got := CommandID(DefaultCommandPriority, DefaultSourceAddress).String(); got != "19FEDB63" {
		t.Errorf("CommandID string = %q, want 19FEDB63", got)
	}
}

func TestParseDGN(t *testing.T) {
	tests := []struct {
		in      string
		want    DGN
		wantErr bool
	}{
		{in: "1FEDA", want: 0x1FEDA},
		{in: "0x1FEDB", want: 0x1FEDB},
		{in: "eeff", want: 0x0EEFF},
		{in: "20000", wantErr: true},
		{in: "", wantErr: true},
		{in: "G0000", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDGN(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidDGN) {
				t.Errorf("ParseDGN(%q) error = %v, want ErrInvalidDGN", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDGN(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDGN(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
