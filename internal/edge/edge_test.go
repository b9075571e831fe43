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
	"errors"
	"testing"
	"github.com/valyala/fastrand"
	"github.com/mlnoga/edgelab/internal/pixels"
)

var allStrengths=[]Strength{StrengthLow, StrengthMedium, StrengthHigh}
var allStrokes  =[]Stroke{StrokeThin, StrokeMedium, StrokeThick}

func randomBuffer(width, height int) *pixels.Buffer {
	rng:=fastrand.RNG{}
	b, _:=pixels.New(width, height)
	for i:=range b.Pix {
		b.Pix[i]=byte(rng.Uint32n(256))
	}
	return b
}

// Opaque black image with a white vertical stripe of given width starting at column x0
func stripeBuffer(width, height, x0, stripe int) *pixels.Buffer {
	b, _:=pixels.New(width, height)
	b.Fill(0, 0, 0, 255)
	for y:=0; y<height; y++ {
		for x:=x0; x<x0+stripe; x++ {
			b.Set(x, y, 255, 255, 255, 255)
		}
	}
	return b
}

// Deterministic test scene: rectangles of different contrast over a textured background
func sceneBuffer(width, height int) *pixels.Buffer {
	b, _:=pixels.New(width, height)
	for y:=0; y<height; y++ {
		for x:=0; x<width; x++ {
			v:=60 + ((x*7919)^(y*104729))%24
			if x>=8 && x<30 && y>=10 && y<40 { v+=120 }
			if x>=36 && x<56 && y>=20 && y<52 { v+=50 }
			if (x-20)*(x-20)+(y-50)*(y-50)<64 { v+=90 }
			b.Set(x, y, uint8(v), uint8(v), uint8(v), 255)
		}
	}
	return b
}

func TestSobelStripe(t *testing.T) {
	b:=stripeBuffer(10, 10, 4, 3)
	out, err:=Sobel(b, DefaultSobelOptions())
	if err!=nil { t.Fatal(err) }
	for y:=0; y<10; y++ {
		for x:=0; x<10; x++ {
			r, g, bl, a:=out.At(x, y)
			want:=uint8(0)
			if y>0 && y<9 && (x==3 || x==4 || x==6 || x==7) { want=255 }
			if r!=want || g!=want || bl!=want || a!=255 {
				t.Errorf("pixel [%d,%d]=%d,%d,%d,%d; want %d,%d,%d,255", x, y, r, g, bl, a, want, want, want)
			}
		}
	}
}

func TestSobelAlphaRules(t *testing.T) {
	b:=randomBuffer(33, 21)
	orig:=b.Clone()
	adaptive, err:=Sobel(b, DefaultSobelOptions())
	if err!=nil { t.Fatal(err) }
	fixed, err:=Sobel(b, LegacySobelOptions())
	if err!=nil { t.Fatal(err) }
	for y:=0; y<b.Height; y++ {
		for x:=0; x<b.Width; x++ {
			if _, _, _, a:=adaptive.At(x, y); a!=255 { t.Fatalf("adaptive alpha at [%d,%d]=%d; want 255", x, y, a) }
			r, g, bl, a:=fixed.At(x, y)
			if b.IsBorder(x, y) {
				if r!=0 || g!=0 || bl!=0 || a!=0 { t.Fatalf("fixed border [%d,%d]=%d,%d,%d,%d; want 0,0,0,0", x, y, r, g, bl, a) }
			} else if a!=255 {
				t.Fatalf("fixed interior alpha at [%d,%d]=%d; want 255", x, y, a)
			}
		}
	}
	if CountEdges(adaptive)==0 { t.Errorf("no adaptive edges on random input") }
	for i:=range b.Pix {
		if b.Pix[i]!=orig.Pix[i] { t.Fatalf("input byte %d modified", i) }
	}
}

func TestSobelFlatImageHasNoEdges(t *testing.T) {
	b, _:=pixels.New(8, 8)
	b.Fill(90, 90, 90, 255)
	for _, p:=range []float64{0, 0.5, 0.85, 1} {
		out, err:=Sobel(b, SobelOptions{Mode: SobelAdaptive, Percentile: p})
		if err!=nil { t.Fatal(err) }
		if n:=CountEdges(out); n!=0 { t.Errorf("percentile %g: %d edges on flat image; want 0", p, n) }
	}
}

func TestSobelAdaptiveIgnoresFlatArea(t *testing.T) {
	// mostly flat image: a strong stripe at x=10 and a faint one of luma 3 at x=30
	b:=stripeBuffer(40, 40, 10, 3)
	for y:=0; y<40; y++ {
		for x:=30; x<33; x++ { b.Set(x, y, 3, 3, 3, 255) }
	}
	out, err:=Sobel(b, DefaultSobelOptions())
	if err!=nil { t.Fatal(err) }
	for y:=1; y<39; y++ {
		for x:=28; x<35; x++ {
			if r, _, _, _:=out.At(x, y); r!=0 { t.Fatalf("faint stripe edge at [%d,%d]; want none", x, y) }
		}
	}
	if n:=CountEdges(out); n!=4*38 { t.Errorf("edges=%d; want %d around the strong stripe", n, 4*38) }
}

func TestSobelFixedThreshold(t *testing.T) {
	b:=stripeBuffer(10, 10, 4, 3)
	out, err:=Sobel(b, LegacySobelOptions())
	if err!=nil { t.Fatal(err) }
	// 255-step gives gx=1020, far above 4000 when squared
	if n:=CountEdges(out); n!=4*8 { t.Errorf("fixed edges=%d; want 32", n) }
	if _, err:=Sobel(b, SobelOptions{Mode: SobelFixed, Threshold: -1}); !errors.Is(err, pixels.ErrInvalidConfiguration) {
		t.Errorf("err=%v; want ErrInvalidConfiguration", err)
	}
}

func TestSobelInvalidInput(t *testing.T) {
	b:=&pixels.Buffer{Width: 2, Height: 2, Pix: make([]byte, 15)}
	if _, err:=Sobel(b, DefaultSobelOptions()); !errors.Is(err, pixels.ErrContractViolation) {
		t.Errorf("err=%v; want ErrContractViolation", err)
	}
	ok, _:=pixels.New(4, 4)
	for _, p:=range []float64{-0.1, 1.5} {
		if _, err:=Sobel(ok, SobelOptions{Mode: SobelAdaptive, Percentile: p}); !errors.Is(err, pixels.ErrInvalidConfiguration) {
			t.Errorf("percentile %g err=%v; want ErrInvalidConfiguration", p, err)
		}
	}
	if _, err:=ParseSobelMode("LEGACY"); err!=nil { t.Errorf("ParseSobelMode(LEGACY) err=%v", err) }
	if _, err:=ParseSobelMode("canny"); !errors.Is(err, pixels.ErrInvalidConfiguration) { t.Errorf("err=%v; want ErrInvalidConfiguration", err) }
}

func TestTinyImagesHaveNoEdges(t *testing.T) {
	for _, n:=range []int{1, 2} {
		b:=randomBuffer(n, n)
		adaptive, err:=Sobel(b, DefaultSobelOptions())
		if err!=nil { t.Fatal(err) }
		fixed, err:=Sobel(b, LegacySobelOptions())
		if err!=nil { t.Fatal(err) }
		canny, err:=Canny(b, DefaultCannyOptions())
		if err!=nil { t.Fatal(err) }
		for i:=0; i<len(b.Pix); i+=4 {
			for c:=0; c<3; c++ {
				if adaptive.Pix[i+c]!=0 || fixed.Pix[i+c]!=0 || canny.Pix[i+c]!=0 {
					t.Errorf("%dx%d pixel %d has edge color", n, n, i/4)
				}
			}
			if fixed.Pix[i+3]!=0 { t.Errorf("%dx%d fixed alpha=%d; want 0", n, n, fixed.Pix[i+3]) }
			if adaptive.Pix[i+3]!=255 || canny.Pix[i+3]!=255 { t.Errorf("%dx%d alpha not opaque", n, n) }
		}
	}
}

func TestCannyBlackImage(t *testing.T) {
	b, _:=pixels.New(4, 4)
	b.Fill(0, 0, 0, 255)
	for _, s:=range allStrengths {
		for _, k:=range allStrokes {
			out, err:=Canny(b, CannyOptions{Strength: s, Stroke: k})
			if err!=nil { t.Fatal(err) }
			for i:=0; i<len(out.Pix); i+=4 {
				if out.Pix[i]!=0 || out.Pix[i+1]!=0 || out.Pix[i+2]!=0 || out.Pix[i+3]!=255 {
					t.Fatalf("%v/%v pixel %d=%v; want [0 0 0 255]", s, k, i/4, out.Pix[i:i+4])
				}
			}
		}
	}
}

func TestCannyOutputOpaque(t *testing.T) {
	b:=sceneBuffer(64, 64)
	for _, s:=range allStrengths {
		out, err:=Canny(b, CannyOptions{Strength: s, Stroke: StrokeMedium})
		if err!=nil { t.Fatal(err) }
		edges:=0
		for i:=0; i<len(out.Pix); i+=4 {
			if out.Pix[i+3]!=255 { t.Fatalf("%v alpha at %d=%d; want 255", s, i/4, out.Pix[i+3]) }
			if v:=out.Pix[i]; v!=0 && v!=255 { t.Fatalf("%v value %d not binary", s, v) }
			if out.Pix[i]==255 { edges++ }
		}
		if edges==0 { t.Errorf("%v found no edges in scene", s) }
	}
}

func TestCannyEdgesHaveNonzeroNMS(t *testing.T) {
	for _, b:=range []*pixels.Buffer{randomBuffer(40, 30), sceneBuffer(64, 64)} {
		for _, s:=range allStrengths {
			r, err:=CannyStages(b, CannyOptions{Strength: s, Stroke: StrokeThin})
			if err!=nil { t.Fatal(err) }
			for i, e:=range r.Edges {
				if e && !(r.NMS[i]>0) { t.Fatalf("%v edge at %d with NMS %g", s, i, r.NMS[i]) }
				if e && !(r.NMS[i]>=r.Low) { t.Fatalf("%v edge at %d below low threshold", s, i) }
				if r.NMS[i]>0 && r.NMS[i]>r.Gradient.Magnitude[i] { t.Fatalf("NMS exceeds magnitude at %d", i) }
			}
			for i, m:=range r.Mask {
				if m!=r.Edges[i] { t.Fatalf("%v thin mask differs from edges at %d", s, i) }
			}
		}
	}
}

func TestCannyMonotoneInStrength(t *testing.T) {
	b:=sceneBuffer(64, 64)
	count:=func(s Strength) int {
		mask, err:=CannyMask(b, CannyOptions{Strength: s, Stroke: StrokeThin})
		if err!=nil { t.Fatal(err) }
		n:=0
		for _, m:=range mask { if m { n++ } }
		return n
	}
	low, high:=count(StrengthLow), count(StrengthHigh)
	if high<low { t.Errorf("high strength found %d edges, low strength %d; want high >= low", high, low) }
}

func TestCannyInvalid(t *testing.T) {
	b:=&pixels.Buffer{Width: 5, Height: 5, Pix: make([]byte, 99)}
	if _, err:=Canny(b, DefaultCannyOptions()); !errors.Is(err, pixels.ErrContractViolation) {
		t.Errorf("err=%v; want ErrContractViolation", err)
	}
	ok, _:=pixels.New(5, 5)
	if _, err:=Canny(ok, CannyOptions{Strength: -1}); !errors.Is(err, pixels.ErrInvalidConfiguration) {
		t.Errorf("err=%v; want ErrInvalidConfiguration", err)
	}
	if _, err:=Canny(ok, CannyOptions{Stroke: 3}); !errors.Is(err, pixels.ErrInvalidConfiguration) {
		t.Errorf("err=%v; want ErrInvalidConfiguration", err)
	}
}

func TestClassify(t *testing.T) {
	nms  :=[]float32{0, 1, 4, 5, 10}
	state:=Classify(nms, 5, 2)
	want :=[]EdgeState{EdgeNone, EdgeNone, EdgeWeak, EdgeStrong, EdgeStrong}
	for i:=range want {
		if state[i]!=want[i] { t.Errorf("state[%d]=%d; want %d", i, state[i], want[i]) }
	}
	// all-zero input with zero thresholds stays empty
	for i, s:=range Classify(make([]float32, 9), 0, 0) {
		if s!=EdgeNone { t.Errorf("zero state[%d]=%d; want none", i, s) }
	}
}

func TestHysteresis(t *testing.T) {
	const W, N, S=EdgeWeak, EdgeNone, EdgeStrong
	width, height:=7, 5
	state:=[]EdgeState{
		N, N, N, N, N, N, N,
		N, S, W, N, N, W, N,
		N, N, N, W, N, N, N,
		N, N, N, N, W, N, N,
		N, N, N, N, N, N, N,
	}
	Hysteresis(state, width, height)
	want:=[]EdgeState{
		N, N, N, N, N, N, N,
		N, S, S, N, N, W, N,
		N, N, N, S, N, N, N,
		N, N, N, N, S, N, N,
		N, N, N, N, N, N, N,
	}
	for i:=range want {
		if state[i]!=want[i] { t.Errorf("state[%d,%d]=%d; want %d", i%width, i/width, state[i], want[i]) }
	}
}

func TestNonMaximumSuppressionThinsRidge(t *testing.T) {
	b:=stripeBuffer(12, 9, 5, 2)
	r, err:=CannyStages(b, CannyOptions{Strength: StrengthHigh, Stroke: StrokeThin})
	if err!=nil { t.Fatal(err) }
	w:=r.Width
	for y:=2; y<r.Height-2; y++ {
		run:=0
		for x:=1; x<w-1; x++ {
			if r.NMS[y*w+x]>0 { run++ } else { run=0 }
			if run>2 { t.Errorf("row %d: NMS ridge wider than 2 at x=%d", y, x) }
		}
	}
}

func TestDilateThinIsIdentity(t *testing.T) {
	rng:=fastrand.RNG{}
	width, height:=17, 13
	mask:=make([]bool, width*height)
	for i:=range mask { mask[i]=rng.Uint32n(4)==0 }
	out:=Dilate(mask, width, height, StrokeThin)
	for i:=range mask {
		if out[i]!=mask[i] { t.Fatalf("thin dilation changed pixel %d", i) }
	}
	out[0]=!out[0]
	if out[0]==mask[0] { t.Errorf("thin dilation returned its input slice") }
}

func TestDilateSquareWindow(t *testing.T) {
	width, height:=9, 9
	for _, tc:=range []struct{ Stroke Stroke; X, Y, Count int }{
		{StrokeMedium, 4, 4, 9},
		{StrokeThick,  4, 4, 25},
		{StrokeMedium, 0, 0, 4},   // clipped at the corner
		{StrokeThick,  0, 4, 15},
	} {
		mask:=make([]bool, width*height)
		mask[tc.Y*width+tc.X]=true
		out:=Dilate(mask, width, height, tc.Stroke)
		r, _:=tc.Stroke.Dilation()
		n:=0
		for i, v:=range out {
			x, y:=i%width, i/width
			inside:=x>=tc.X-r && x<=tc.X+r && y>=tc.Y-r && y<=tc.Y+r
			if v!=inside { t.Errorf("%v at [%d,%d]: [%d,%d]=%v; want %v", tc.Stroke, tc.X, tc.Y, x, y, v, inside) }
			if v { n++ }
		}
		if n!=tc.Count { t.Errorf("%v at [%d,%d]: %d pixels; want %d", tc.Stroke, tc.X, tc.Y, n, tc.Count) }
	}
}
