// Copyright (C) 2025 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package edge

import (
	"encoding/json"
	"errors"
	"testing"
	"github.com/mlnoga/edgelab/internal/pixels"
)

type parseTestCase struct {
	Name  string
	Value int
	Err   bool
}

func TestParseStrength(t *testing.T) {
	tcs:=[]parseTestCase{
		{"low", int(StrengthLow), false},
		{"LOW", int(StrengthLow), false},
		{" Medium ", int(StrengthMedium), false},
		{"high", int(StrengthHigh), false},
		{"", int(StrengthMedium), false},
		{"ultra", 0, true},
		{"thin", 0, true},
	}
	for _, tc:=range tcs {
		s, err:=ParseStrength(tc.Name)
		if tc.Err {
			if !errors.Is(err, pixels.ErrInvalidConfiguration) { t.Errorf("ParseStrength(%q) err=%v; want ErrInvalidConfiguration", tc.Name, err) }
			continue
		}
		if err!=nil || int(s)!=tc.Value { t.Errorf("ParseStrength(%q)=%v, %v; want %d", tc.Name, s, err, tc.Value) }
	}
}

func TestParseStroke(t *testing.T) {
	tcs:=[]parseTestCase{
		{"thin", int(StrokeThin), false},
		{"Medium", int(StrokeMedium), false},
		{"THICK", int(StrokeThick), false},
		{"", int(StrokeMedium), false},
		{"bold", 0, true},
		{"high", 0, true},
	}
	for _, tc:=range tcs {
		s, err:=ParseStroke(tc.Name)
		if tc.Err {
			if !errors.Is(err, pixels.ErrInvalidConfiguration) { t.Errorf("ParseStroke(%q) err=%v; want ErrInvalidConfiguration", tc.Name, err) }
			continue
		}
		if err!=nil || int(s)!=tc.Value { t.Errorf("ParseStroke(%q)=%v, %v; want %d", tc.Name, s, err, tc.Value) }
	}
}

func TestStrengthFromLegacySigma(t *testing.T) {
	tcs:=[]struct{ Sigma float64; Strength Strength }{
		{3, StrengthLow}, {1.8, StrengthLow}, {1.79, StrengthMedium}, {1.4, StrengthMedium},
		{1.0, StrengthMedium}, {0.99, StrengthHigh}, {0, StrengthHigh}, {-1, StrengthHigh},
	}
	for _, tc:=range tcs {
		if s:=StrengthFromLegacySigma(tc.Sigma); s!=tc.Strength {
			t.Errorf("StrengthFromLegacySigma(%g)=%v; want %v", tc.Sigma, s, tc.Strength)
		}
	}
}

func TestPresetTables(t *testing.T) {
	wantTaps:=map[Strength]int{StrengthLow: 7, StrengthMedium: 5, StrengthHigh: 3}
	for s, taps:=range wantTaps {
		k:=s.Kernel()
		sum:=float32(0)
		for _, v:=range k.Taps { sum+=v }
		if len(k.Taps)!=taps || sum!=k.Norm {
			t.Errorf("%v kernel has %d taps summing to %g with norm %g; want %d taps summing to norm", s, len(k.Taps), sum, k.Norm, taps)
		}
		high, low:=s.Fractions()
		if !(low>0 && low<high && high<1) { t.Errorf("%v fractions %g/%g out of order", s, high, low) }
	}
	if r, it:=StrokeThin.Dilation(); r!=0 || it!=0 { t.Errorf("thin dilation %d/%d; want 0/0", r, it) }
	if r, it:=StrokeMedium.Dilation(); r!=1 || it!=1 { t.Errorf("medium dilation %d/%d; want 1/1", r, it) }
	if r, it:=StrokeThick.Dilation(); r!=2 || it!=1 { t.Errorf("thick dilation %d/%d; want 2/1", r, it) }
}

func TestOptionsJSON(t *testing.T) {
	var o CannyOptions
	if err:=json.Unmarshal([]byte(`{"Strength":"High","Stroke":"thin"}`), &o); err!=nil { t.Fatal(err) }
	if o.Strength!=StrengthHigh || o.Stroke!=StrokeThin { t.Errorf("options=%+v; want high/thin", o) }

	out, err:=json.Marshal(DefaultCannyOptions())
	if err!=nil { t.Fatal(err) }
	if string(out)!=`{"Strength":"medium","Stroke":"medium"}` { t.Errorf("json=%s", out) }

	if err:=json.Unmarshal([]byte(`{"Strength":"extreme"}`), &o); !errors.Is(err, pixels.ErrInvalidConfiguration) {
		t.Errorf("err=%v; want ErrInvalidConfiguration", err)
	}
	if err:=(CannyOptions{Strength: 5}).Validate(); !errors.Is(err, pixels.ErrInvalidConfiguration) {
		t.Errorf("err=%v; want ErrInvalidConfiguration", err)
	}
}
