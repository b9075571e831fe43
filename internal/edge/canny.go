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
	"fmt"
	"github.com/mlnoga/edgelab/internal"
	"github.com/mlnoga/edgelab/internal/convolve"
	"github.com/mlnoga/edgelab/internal/gradient"
	"github.com/mlnoga/edgelab/internal/pixels"
	"github.com/mlnoga/edgelab/internal/pointwise"
)

// Per-pixel hysteresis classification
type EdgeState uint8

const (
	EdgeNone EdgeState = iota
	EdgeWeak
	EdgeStrong
)

type CannyOptions struct {
	Strength Strength
	Stroke   Stroke
}

func DefaultCannyOptions() CannyOptions {
	return CannyOptions{Strength: StrengthMedium, Stroke: StrokeMedium}
}

func (o CannyOptions) Validate() error {
	if !o.Strength.valid() { return fmt.Errorf("%w: strength %d", pixels.ErrInvalidConfiguration, int(o.Strength)) }
	if !o.Stroke.valid()   { return fmt.Errorf("%w: stroke %d",   pixels.ErrInvalidConfiguration, int(o.Stroke)) }
	return nil
}

// Intermediate results of one Canny run, in stage order
type CannyResult struct {
	Width    int
	Height   int
	Gray     []float32        // integer luma
	Blurred  []float32        // after the strength preset blur
	Gradient *gradient.Field
	NMS      []float32        // magnitudes surviving non-maximum suppression
	High     float32          // absolute thresholds
	Low      float32
	State    []EdgeState      // after hysteresis
	Edges    []bool           // strong pixels
	Mask     []bool           // edges after stroke dilation
}

// Runs all Canny stages and keeps the intermediate planes. Images without interior pixels
// yield empty masks and nil planes
func CannyStages(b *pixels.Buffer, o CannyOptions) (*CannyResult, error) {
	if err:=b.Validate(); err!=nil { return nil, err }
	if err:=o.Validate(); err!=nil { return nil, err }

	w, h:=b.Width, b.Height
	r:=&CannyResult{Width: w, Height: h}
	if !gradient.HasInterior(w, h) {
		r.Edges=make([]bool, w*h)
		r.Mask =make([]bool, w*h)
		return r, nil
	}

	r.Gray    =pointwise.LumaPlaneFloat(b, nil)
	r.Blurred =convolve.BlurPlane(r.Gray, w, o.Strength.Kernel())
	r.Gradient=gradient.Compute(r.Blurred, w, h)
	r.NMS     =NonMaximumSuppression(r.Gradient)

	maxNMS:=float32(0)
	for _, v:=range r.NMS {
		if v>maxNMS { maxNMS=v }
	}
	highFrac, lowFrac:=o.Strength.Fractions()
	r.High, r.Low=highFrac*maxNMS, lowFrac*maxNMS

	r.State=Classify(r.NMS, r.High, r.Low)
	Hysteresis(r.State, w, h)
	r.Edges=make([]bool, w*h)
	for i, s:=range r.State {
		r.Edges[i]= s==EdgeStrong
	}
	r.Mask=Dilate(r.Edges, w, h, o.Stroke)
	return r, nil
}

// Runs the Canny pipeline and returns the final edge mask
func CannyMask(b *pixels.Buffer, o CannyOptions) ([]bool, error) {
	r, err:=CannyStages(b, o)
	if err!=nil { return nil, err }
	return r.Mask, nil
}

// Runs the Canny pipeline. Returns a new buffer with edges in opaque white and everything else in opaque black
func Canny(b *pixels.Buffer, o CannyOptions) (*pixels.Buffer, error) {
	mask, err:=CannyMask(b, o)
	if err!=nil { return nil, err }
	return MaskToRGBA(mask, b.Width, b.Height), nil
}

// Keeps interior magnitudes which are at least as large as both neighbors along the quantized
// gradient direction, and zeroes everything else
func NonMaximumSuppression(f *gradient.Field) []float32 {
	w, h:=f.Width, f.Height
	mag :=f.Magnitude
	out :=make([]float32, w*h)
	if !gradient.HasInterior(w, h) { return out }

	internal.ParallelRows(h-2, func(lower, upper int) {
		for y:=lower+1; y<upper+1; y++ {
			for i:=y*w+1; i<(y+1)*w-1; i++ {
				var m1, m2 float32
				switch f.Direction[i] {
				case gradient.Dir0:  m1, m2=mag[i-1],   mag[i+1]
				case gradient.Dir45: m1, m2=mag[i-w+1], mag[i+w-1]
				case gradient.Dir90: m1, m2=mag[i-w],   mag[i+w]
				default:             m1, m2=mag[i-w-1], mag[i+w+1]
				}
				if m:=mag[i]; m>=m1 && m>=m2 { out[i]=m }
			}
		}
	})
	return out
}

// Double threshold: strong at or above high, weak at or above low, none otherwise.
// Zero values are never edges, so a flat image produces no edges
func Classify(nms []float32, high, low float32) []EdgeState {
	state:=make([]EdgeState, len(nms))
	for i, v:=range nms {
		switch {
		case v<=0:    state[i]=EdgeNone
		case v>=high: state[i]=EdgeStrong
		case v>=low:  state[i]=EdgeWeak
		}
	}
	return state
}

// Promotes weak pixels 8-connected to a strong pixel, transitively, until no more change.
// Iterative flood fill over an explicit index stack. Each pixel is pushed at most once, so the
// stack never exceeds the number of pixels
func Hysteresis(state []EdgeState, width, height int) {
	if !gradient.HasInterior(width, height) { return }
	stack:=internal.GetArrayOfInt32FromPool(width*height)
	defer internal.PutArrayOfInt32IntoPool(stack)
	top:=0

	for y:=1; y<height-1; y++ {
		for i:=y*width+1; i<(y+1)*width-1; i++ {
			if state[i]==EdgeStrong { stack[top]=int32(i); top++ }
		}
	}

	for top>0 {
		top--
		i:=int(stack[top])
		x, y:=i%width, i/width
		for ny:=y-1; ny<=y+1; ny++ {
			if ny<0 || ny>=height { continue }
			for nx:=x-1; nx<=x+1; nx++ {
				if nx<0 || nx>=width { continue }
				j:=ny*width+nx
				if state[j]==EdgeWeak {
					state[j]=EdgeStrong
					stack[top]=int32(j)
					top++
				}
			}
		}
	}
}

// Thickens the mask according to the stroke preset. Thin returns an identical copy
func Dilate(mask []bool, width, height int, s Stroke) []bool {
	radius, iterations:=s.Dilation()
	return DilateRadius(mask, width, height, radius, iterations)
}

// Binary dilation with a square window of the given radius, clipped at the image border.
// A pixel becomes an edge if any pixel within the window is one. Applied as a horizontal,
// then a vertical pass, which is equivalent for square windows. Returns a new mask
func DilateRadius(mask []bool, width, height, radius, iterations int) []bool {
	cur:=append([]bool(nil), mask...)
	if radius<=0 || iterations<=0 { return cur }
	tmp:=make([]bool, len(mask))

	for it:=0; it<iterations; it++ {
		internal.ParallelRows(height, func(lower, upper int) {
			for y:=lower; y<upper; y++ {
				row, out:=cur[y*width:(y+1)*width], tmp[y*width:(y+1)*width]
				for x:=range out {
					v:=false
					for nx:=max(x-radius, 0); nx<=min(x+radius, width-1) && !v; nx++ {
						v=row[nx]
					}
					out[x]=v
				}
			}
		})
		internal.ParallelRows(height, func(lower, upper int) {
			for y:=lower; y<upper; y++ {
				for x:=0; x<width; x++ {
					v:=false
					for ny:=max(y-radius, 0); ny<=min(y+radius, height-1) && !v; ny++ {
						v=tmp[ny*width+x]
					}
					cur[y*width+x]=v
				}
			}
		})
	}
	return cur
}

// Renders a mask as opaque white edges on opaque black
func MaskToRGBA(mask []bool, width, height int) *pixels.Buffer {
	out:=&pixels.Buffer{Width: width, Height: height, Pix: make([]byte, width*height*pixels.Channels)}
	for i, m:=range mask {
		o:=i*pixels.Channels
		v:=byte(0)
		if m { v=255 }
		out.Pix[o], out.Pix[o+1], out.Pix[o+2], out.Pix[o+3] = v, v, v, 255
	}
	return out
}
