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


package pointwise

import (
	"errors"
	"testing"
	"github.com/valyala/fastrand"
	"github.com/mlnoga/edgelab/internal/pixels"
)

func randomBuffer(width, height int) *pixels.Buffer {
	rng:=fastrand.RNG{}
	b, _:=pixels.New(width, height)
	for i:=range b.Pix {
		b.Pix[i]=byte(rng.Uint32n(256))
	}
	return b
}

func TestGrayscaleEqualChannelsKeepsAlpha(t *testing.T) {
	for _, gray:=range []func(*pixels.Buffer) error{Grayscale, GrayscaleInt} {
		b:=randomBuffer(37, 53)
		orig:=b.Clone()
		if err:=gray(b); err!=nil { t.Fatal(err) }
		for i:=0; i<len(b.Pix); i+=4 {
			if b.Pix[i]!=b.Pix[i+1] || b.Pix[i+1]!=b.Pix[i+2] {
				t.Fatalf("pixel %d: R,G,B=%d,%d,%d; want equal", i/4, b.Pix[i], b.Pix[i+1], b.Pix[i+2])
			}
			if b.Pix[i+3]!=orig.Pix[i+3] {
				t.Fatalf("pixel %d: alpha=%d; want %d", i/4, b.Pix[i+3], orig.Pix[i+3])
			}
		}
	}
}

type lumaTestCase struct {
	R, G, B   uint8
	Luma      uint8
	LumaInt   int32
}

func TestLuma(t *testing.T) {
	tcs:=[]lumaTestCase{
		{0, 0, 0, 0, 0},
		{255, 255, 255, 255, 255},
		{255, 0, 0, 54, 76},     // 53.55 rounds up, 77*255>>8
		{0, 255, 0, 184, 149},
		{0, 0, 255, 18, 28},
		{100, 150, 200, 143, 140},
	}
	for _, tc:=range tcs {
		if l:=Luma(tc.R, tc.G, tc.B); l!=tc.Luma {
			t.Errorf("Luma(%d,%d,%d)=%d; want %d", tc.R, tc.G, tc.B, l, tc.Luma)
		}
		if l:=LumaInt(tc.R, tc.G, tc.B); l!=tc.LumaInt {
			t.Errorf("LumaInt(%d,%d,%d)=%d; want %d", tc.R, tc.G, tc.B, l, tc.LumaInt)
		}
	}
}

func TestSepiaWhiteStaysInRange(t *testing.T) {
	b, _:=pixels.New(2, 1)
	b.Fill(255, 255, 255, 200)
	out, err:=Sepia(b)
	if err!=nil { t.Fatal(err) }
	for x:=0; x<2; x++ {
		r, g, bl, a:=out.At(x, 0)
		// 0.272+0.534+0.131=0.937 of 255 is 238.935, truncated
		if r!=255 || g!=255 || bl!=238 || a!=200 {
			t.Errorf("sepia(white)=%d,%d,%d,%d; want 255,255,238,200", r, g, bl, a)
		}
	}
	if r, _, _, _:=b.At(0, 0); r!=255 { t.Errorf("sepia modified its input") }
}

func TestSepiaKnownValue(t *testing.T) {
	b, _:=pixels.New(1, 1)
	b.Set(0, 0, 100, 50, 20, 7)
	out, err:=Sepia(b)
	if err!=nil { t.Fatal(err) }
	// R'=39.3+38.45+3.78=81.53, G'=34.9+34.3+3.36=72.56, B'=27.2+26.7+2.62=56.52
	r, g, bl, a:=out.At(0, 0)
	if r!=81 || g!=72 || bl!=56 || a!=7 {
		t.Errorf("sepia(100,50,20,7)=%d,%d,%d,%d; want 81,72,56,7", r, g, bl, a)
	}
}

func TestContractViolation(t *testing.T) {
	b:=&pixels.Buffer{Width: 3, Height: 3, Pix: make([]byte, 35)}
	if err:=Grayscale(b); !errors.Is(err, pixels.ErrContractViolation) {
		t.Errorf("Grayscale err=%v; want ErrContractViolation", err)
	}
	if _, err:=Sepia(b); !errors.Is(err, pixels.ErrContractViolation) {
		t.Errorf("Sepia err=%v; want ErrContractViolation", err)
	}
	for _, v:=range b.Pix {
		if v!=0 { t.Fatalf("buffer written despite contract violation") }
	}
}

func TestLumaPlanes(t *testing.T) {
	b:=randomBuffer(5, 4)
	pi:=LumaPlaneInt(b, nil)
	pf:=LumaPlaneFloat(b, nil)
	for i:=range pi {
		o:=i*4
		want:=LumaInt(b.Pix[o], b.Pix[o+1], b.Pix[o+2])
		if pi[i]!=want || pf[i]!=float32(want) {
			t.Errorf("plane[%d]=%d/%f; want %d", i, pi[i], pf[i], want)
		}
	}
}
