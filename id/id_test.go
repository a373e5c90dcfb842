package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/allot/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"LocationID", id.NewLocationID, "loc_"},
		{"PickupID", id.NewPickupID, "pick_"},
		{"TransferID", id.NewTransferID, "xfer_"},
		{"MovementID", id.NewMovementID, "mov_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"LocationID", id.NewLocationID, id.ParseLocationID},
		{"PickupID", id.NewPickupID, id.ParsePickupID},
		{"TransferID", id.NewTransferID, id.ParseTransferID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestParseWrongPrefix(t *testing.T) {
	loc := id.NewLocationID()
	if _, err := id.ParsePickupID(loc.String()); err == nil {
		t.Error("expected error parsing a location id as a pickup id")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
}

func TestCompare(t *testing.T) {
	a := id.MustParse("loc_01h2xcejqtf2nbrexx3vqjhp41")
	b := id.MustParse("loc_01h2xcejqtf2nbrexx3vqjhp42")

	if a.Compare(b) != -1 || b.Compare(a) != 1 || a.Compare(a) != 0 {
		t.Errorf("unexpected ordering between %s and %s", a, b)
	}
}

func TestValueScan(t *testing.T) {
	original := id.NewTransferID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if scanErr := scanned.Scan(val); scanErr != nil {
		t.Fatalf("Scan failed: %v", scanErr)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned.String(), original.String())
	}

	var scanned2 id.ID
	if err := scanned2.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if !scanned2.IsNil() {
		t.Error("expected nil after scan of nil")
	}
}

func TestUniqueness(t *testing.T) {
	a := id.NewMovementID()
	b := id.NewMovementID()
	if a.String() == b.String() {
		t.Errorf("two consecutive NewMovementID() calls returned the same ID: %q", a.String())
	}
}
