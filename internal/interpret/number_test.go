package interpret

import "testing"

func TestExtractQuantity(t *testing.T) {
	tests := []struct {
		clause   string
		wantQty  float64
		wantUnit string
		wantNil  bool
	}{
		{clause: "ran 3 miles", wantQty: 3, wantUnit: "miles"},
		{clause: "ran 3.5 miles", wantQty: 3.5, wantUnit: "miles"},
		{clause: "read twenty pages", wantQty: 20, wantUnit: "pages"},
		{clause: "meditated for two and a half hours", wantQty: 2.5, wantUnit: "hours"},
		{clause: "did half an hour of yoga", wantQty: 0.5, wantUnit: "hour"},
		{clause: "drank 2 glasses of water", wantQty: 2, wantUnit: "glasses"},
		{clause: "did 15 minutes", wantQty: 15, wantUnit: "minutes"},
		{clause: "ran 5", wantQty: 5, wantUnit: ""},
		{clause: "walked 10000 steps", wantQty: 10000, wantUnit: "steps"},
		{clause: "did yoga", wantNil: true},
		{clause: "", wantNil: true},
	}

	for _, tt := range tests {
		qty, unit := extractQuantity(tt.clause)
		if tt.wantNil {
			if qty != nil {
				t.Errorf("extractQuantity(%q) = %v, want nil", tt.clause, *qty)
			}
			continue
		}
		if qty == nil {
			t.Errorf("extractQuantity(%q) = nil, want %v", tt.clause, tt.wantQty)
			continue
		}
		if *qty != tt.wantQty {
			t.Errorf("extractQuantity(%q) qty = %v, want %v", tt.clause, *qty, tt.wantQty)
		}
		if unit != tt.wantUnit {
			t.Errorf("extractQuantity(%q) unit = %q, want %q", tt.clause, unit, tt.wantUnit)
		}
	}
}

func TestExtractQuantity_FirstMatchWins(t *testing.T) {
	qty, unit := extractQuantity("ran 3 miles in 30 minutes")
	if qty == nil || *qty != 3 {
		t.Fatalf("qty = %v, want 3", qty)
	}
	if unit != "miles" {
		t.Errorf("unit = %q, want miles", unit)
	}
}

func TestIsNumberWord(t *testing.T) {
	for _, w := range []string{"3", "3.5", "twenty", "half", "quarter", "ten,"} {
		if !isNumberWord(w) {
			t.Errorf("isNumberWord(%q) = false, want true", w)
		}
	}
	for _, w := range []string{"yoga", "miles", "", "and"} {
		if isNumberWord(w) {
			t.Errorf("isNumberWord(%q) = true, want false", w)
		}
	}
}
