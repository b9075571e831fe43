// Copyright (C) 2020 Markus L. Noga
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


// 3x3 Sobel gradients over single channel planes. Only interior pixels with a full
// neighborhood are computed, border entries stay zero.
package gradient

import (
	"math"
	"github.com/mlnoga/edgelab/internal"
)

// Quantized gradient directions
const (
	Dir0   uint8 = iota
	Dir45
	Dir90
	Dir135
)

// Gradient magnitude and quantized direction over the full width x height grid
type Field struct {
	Width     int
	Height    int
	Magnitude []float32
	Direction []uint8
}

// True if the plane has at least one interior pixel
func HasInterior(width, height int) bool {
	return width>=3 && height>=3
}

// Sobel responses at offset i of a plane with the given width. The neighborhood p1..p9 is read row-major
func sobelFloat32(p []float32, i, width int) (gx, gy float32) {
	p1, p2, p3:=p[i-width-1], p[i-width], p[i-width+1]
	p4,     p6:=p[i-1],                   p[i+1]
	p7, p8, p9:=p[i+width-1], p[i+width], p[i+width+1]
	gx=(p3+2*p6+p9)-(p1+2*p4+p7)
	gy=(p7+2*p8+p9)-(p1+2*p2+p3)
	return gx, gy
}

// Integer version of sobelFloat32
func sobelInt32(p []int32, i, width int) (gx, gy int32) {
	p1, p2, p3:=p[i-width-1], p[i-width], p[i-width+1]
	p4,     p6:=p[i-1],                   p[i+1]
	p7, p8, p9:=p[i+width-1], p[i+width], p[i+width+1]
	gx=(p3+2*p6+p9)-(p1+2*p4+p7)
	gy=(p7+2*p8+p9)-(p1+2*p2+p3)
	return gx, gy
}

// Quantizes the direction of gradient (gx, gy) into one of four classes. The angle atan2(gy,gx)
// is folded into [0,180) degrees, with class boundaries at 22.5, 67.5, 112.5 and 157.5
func QuantizeDirection(gx, gy float32) uint8 {
	angle:=math.Atan2(float64(gy), float64(gx))*180/math.Pi
	if angle<0 { angle+=180 }
	switch {
	case angle<22.5 || angle>=157.5: return Dir0
	case angle<67.5:                 return Dir45
	case angle<112.5:                return Dir90
	default:                         return Dir135
	}
}

// Computes gradient magnitude sqrt(gx^2+gy^2) and quantized direction for all interior pixels
// of the given plane. Rows are processed in parallel
func Compute(plane []float32, width, height int) *Field {
	f:=&Field{
		Width:     width,
		Height:    height,
		Magnitude: make([]float32, width*height),
		Direction: make([]uint8,   width*height),
	}
	if !HasInterior(width, height) { return f }

	internal.ParallelRows(height-2, func(lower, upper int) {
		for y:=lower+1; y<upper+1; y++ {
			for i:=y*width+1; i<(y+1)*width-1; i++ {
				gx, gy:=sobelFloat32(plane, i, width)
				f.Magnitude[i]=float32(math.Sqrt(float64(gx*gx+gy*gy)))
				f.Direction[i]=QuantizeDirection(gx, gy)
			}
		}
	})
	return f
}

// Computes squared gradient magnitudes gx^2+gy^2 for all interior pixels of an integer plane,
// storing them into res. Border entries are set to zero. Allocates res if nil
func SquaredMagnitudes(plane []int32, width, height int, res []int32) []int32 {
	if res==nil {
		res=make([]int32, width*height)
	} else {
		res=res[:width*height]
		for i:=range res { res[i]=0 }
	}
	if !HasInterior(width, height) { return res }

	internal.ParallelRows(height-2, func(lower, upper int) {
		for y:=lower+1; y<upper+1; y++ {
			for i:=y*width+1; i<(y+1)*width-1; i++ {
				gx, gy:=sobelInt32(plane, i, width)
				res[i]=gx*gx+gy*gy
			}
		}
	})
	return res
}

// Copies the interior values of a width x height grid into dest, which is allocated if
// too small. Returns the (width-2)*(height-2) interior values in row-major order
func Interior(values []int32, width, height int, dest []int32) []int32 {
	if !HasInterior(width, height) { return dest[:0] }
	n:=(width-2)*(height-2)
	if cap(dest)<n { dest=make([]int32, n) }
	dest=dest[:n]
	o:=0
	for y:=1; y<height-1; y++ {
		o+=copy(dest[o:], values[y*width+1:(y+1)*width-1])
	}
	return dest
}
