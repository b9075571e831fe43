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


package filter

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"github.com/valyala/fastrand"
	"github.com/mlnoga/edgelab/internal/edge"
	"github.com/mlnoga/edgelab/internal/ops"
	"github.com/mlnoga/edgelab/internal/pixels"
	"github.com/mlnoga/edgelab/internal/pointwise"
)

func randomBuffer(width, height int) *pixels.Buffer {
	rng:=fastrand.RNG{}
	b, _:=pixels.New(width, height)
	for i:=range b.Pix {
		b.Pix[i]=byte(rng.Uint32n(256))
	}
	return b
}

func testContext() *ops.Context {
	return &ops.Context{Log: io.Discard, MaxThreads: 1}
}

func TestUnmarshalDefaults(t *testing.T) {
	var seq ops.OpSequence
	data:=`{"type":"seq","steps":[
		{"type":"grayscale"},
		{"type":"blur","sigma":2},
		{"type":"sobel","mode":"legacy"},
		{"type":"canny","strength":"HIGH"},
		{"type":"canny","sigma":2.5,"highPercentile":0.9,"lowRatio":0.4},
		{"type":"sepia","active":false}
	]}`
	if err:=json.Unmarshal([]byte(data), &seq); err!=nil { t.Fatal(err) }
	if len(seq.Steps)!=6 || !seq.Active { t.Fatalf("steps=%d active=%v; want 6, true", len(seq.Steps), seq.Active) }

	g:=seq.Steps[0].(*OpGrayscale)
	if !g.Active || g.Integer { t.Errorf("grayscale=%+v; want active float luma", g) }
	bl:=seq.Steps[1].(*OpBlur)
	if bl.Size!=25 || bl.Sigma!=2 || !bl.Active { t.Errorf("blur=%+v; want size 25 sigma 2", bl) }
	s:=seq.Steps[2].(*OpSobel)
	if s.Mode!=edge.SobelFixed || s.Threshold!=edge.DefaultFixedThreshold || s.Percentile!=edge.DefaultPercentile {
		t.Errorf("sobel=%+v; want fixed mode with defaults", s)
	}
	c:=seq.Steps[3].(*OpCanny)
	if o:=c.Options(); o.Strength!=edge.StrengthHigh || o.Stroke!=edge.StrokeMedium { t.Errorf("canny options=%+v; want high/medium", o) }
	legacy:=seq.Steps[4].(*OpCanny)
	if o:=legacy.Options(); o.Strength!=edge.StrengthLow { t.Errorf("legacy sigma 2.5 strength=%v; want low", o.Strength) }
	if seq.Steps[5].IsActive() { t.Errorf("sepia active; want inactive") }
}

func TestUnmarshalErrors(t *testing.T) {
	tcs:=[]string{
		`{"type":"seq","steps":[{"type":"frobnicate"}]}`,
		`{"type":"seq","steps":[{"type":"canny","strength":"extreme"}]}`,
		`{"type":"seq","steps":[{"type":"canny","stroke":"bold"}]}`,
		`{"type":"seq","steps":[{"type":"sobel","percentile":1.5}]}`,
	}
	for _, data:=range tcs {
		var seq ops.OpSequence
		if err:=json.Unmarshal([]byte(data), &seq); !errors.Is(err, pixels.ErrInvalidConfiguration) {
			t.Errorf("%s: err=%v; want ErrInvalidConfiguration", data, err)
		}
	}
}

func TestSequenceJSONRoundTrip(t *testing.T) {
	seq:=ops.NewOpSequence(
		NewOpGrayscale(true),
		NewOpBlur(7, 1.5),
		NewOpCanny(edge.CannyOptions{Strength: edge.StrengthLow, Stroke: edge.StrokeThick}),
	)
	data, err:=json.Marshal(seq)
	if err!=nil { t.Fatal(err) }
	if !strings.Contains(string(data), `"strength":"low"`) || !strings.Contains(string(data), `"stroke":"thick"`) {
		t.Errorf("json %s lacks preset names", data)
	}
	var back ops.OpSequence
	if err:=json.Unmarshal(data, &back); err!=nil { t.Fatal(err) }
	data2, err:=json.Marshal(&back)
	if err!=nil { t.Fatal(err) }
	if !bytes.Equal(data, data2) { t.Errorf("round trip\n%s\n%s", data, data2) }
}

func TestSequenceMatchesDirectCalls(t *testing.T) {
	b:=randomBuffer(29, 31)
	want:=b.Clone()
	if err:=pointwise.GrayscaleInt(want); err!=nil { t.Fatal(err) }
	want, err:=edge.Sobel(want, edge.DefaultSobelOptions())
	if err!=nil { t.Fatal(err) }

	seq:=ops.NewOpSequence(NewOpGrayscale(true), NewOpSepia(false), NewOpSobelDefault())
	if seq.Contract()!=pixels.Allocating { t.Errorf("contract=%v; want allocating", seq.Contract()) }
	if err:=ops.ApplyInPlace(seq, b, testContext()); err!=nil { t.Fatal(err) }
	if !bytes.Equal(b.Pix, want.Pix) { t.Errorf("sequence result differs from direct calls") }
}

func TestSequenceWithoutImage(t *testing.T) {
	bad:=&pixels.Buffer{Width: 3, Height: 3, Pix: make([]byte, 35)}
	for _, op:=range []ops.Operator{NewOpGrayscaleDefault(), NewOpSepiaDefault(), NewOpBlurDefault(), NewOpSobelDefault(), NewOpCannyDefault()} {
		seq:=ops.NewOpSequence(op)
		if _, err:=seq.Apply(nil, testContext()); !errors.Is(err, pixels.ErrContractViolation) {
			t.Errorf("%s on nil buffer err=%v; want ErrContractViolation", op.GetType(), err)
		}
		if _, err:=op.Apply(bad, testContext()); !errors.Is(err, pixels.ErrContractViolation) {
			t.Errorf("%s on short buffer err=%v; want ErrContractViolation", op.GetType(), err)
		}
	}
}

func TestContracts(t *testing.T) {
	if c:=NewOpGrayscaleDefault().Contract(); c!=pixels.InPlace { t.Errorf("grayscale contract=%v", c) }
	for _, op:=range []ops.Operator{NewOpSepiaDefault(), NewOpBlurDefault(), NewOpSobelDefault(), NewOpCannyDefault()} {
		if op.Contract()!=pixels.Allocating { t.Errorf("%s contract=%v; want allocating", op.GetType(), op.Contract()) }
	}
	b:=randomBuffer(4, 4)
	out, err:=NewOpGrayscaleDefault().Apply(b, testContext())
	if err!=nil || out!=b { t.Errorf("grayscale returned %p, %v; want its input", out, err) }
	out, err=NewOpSepiaDefault().Apply(b, testContext())
	if err!=nil || out==b { t.Errorf("sepia returned %p, %v; want a new buffer", out, err) }
}

func TestLoadSaveOperators(t *testing.T) {
	b:=randomBuffer(6, 5)
	name:=filepath.Join(t.TempDir(), "x.png")
	save:=ops.NewOpSave(name)
	if _, err:=save.Apply(b, testContext()); err!=nil { t.Fatal(err) }
	out, err:=ops.NewOpLoad(name).Apply(nil, testContext())
	if err!=nil { t.Fatal(err) }
	if !bytes.Equal(out.Pix, b.Pix) { t.Errorf("loaded image differs from saved one") }

	if ops.IsPathAllowed("/etc/passwd") || ops.IsPathAllowed("a/../../b.png") || !ops.IsPathAllowed("img/a.png") {
		t.Errorf("IsPathAllowed accepts unsafe or rejects safe paths")
	}
}
