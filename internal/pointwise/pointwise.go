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


// Per-pixel color transforms on RGBA buffers, and luma planes for the edge detectors.
package pointwise

import (
	"math"
	"github.com/mlnoga/edgelab/internal"
	"github.com/mlnoga/edgelab/internal/pixels"
)

// Declared contracts, see pixels.Mode
const (
	GrayscaleMode = pixels.InPlace
	SepiaMode     = pixels.Allocating
)

// Perceptual luma with weights 0.21/0.72/0.07, rounded to nearest
func Luma(r, g, b uint8) uint8 {
	return uint8(math.Round(0.21*float64(r) + 0.72*float64(g) + 0.07*float64(b)))
}

// Integer luma approximation (77R + 150G + 29B) >> 8. Never exceeds 255
func LumaInt(r, g, b uint8) int32 {
	return (77*int32(r) + 150*int32(g) + 29*int32(b)) >> 8
}

// Converts the buffer to grayscale in place using perceptual float luma. Alpha is left unchanged
func Grayscale(b *pixels.Buffer) error {
	if err:=b.Validate(); err!=nil { return err }
	pix:=b.Pix
	internal.ParallelRows(b.Height, func(lower, upper int) {
		for i:=lower*b.Width*pixels.Channels; i<upper*b.Width*pixels.Channels; i+=pixels.Channels {
			y:=Luma(pix[i], pix[i+1], pix[i+2])
			pix[i], pix[i+1], pix[i+2] = y, y, y
		}
	})
	return nil
}

// Converts the buffer to grayscale in place using the integer luma approximation. Alpha is left unchanged
func GrayscaleInt(b *pixels.Buffer) error {
	if err:=b.Validate(); err!=nil { return err }
	pix:=b.Pix
	internal.ParallelRows(b.Height, func(lower, upper int) {
		for i:=lower*b.Width*pixels.Channels; i<upper*b.Width*pixels.Channels; i+=pixels.Channels {
			y:=uint8(LumaInt(pix[i], pix[i+1], pix[i+2]))
			pix[i], pix[i+1], pix[i+2] = y, y, y
		}
	})
	return nil
}

// Sepia matrix, rows produce R', G', B'
var sepiaMatrix=[3][3]float64{
	{0.393, 0.769, 0.189},
	{0.349, 0.686, 0.168},
	{0.272, 0.534, 0.131},
}

// Applies the fixed sepia matrix. Returns a new buffer, the input is left untouched.
// Channels are capped at 255 and truncated. Alpha is copied
func Sepia(b *pixels.Buffer) (*pixels.Buffer, error) {
	if err:=b.Validate(); err!=nil { return nil, err }
	out:=b.NewLike()
	src, dst:=b.Pix, out.Pix
	internal.ParallelRows(b.Height, func(lower, upper int) {
		for i:=lower*b.Width*pixels.Channels; i<upper*b.Width*pixels.Channels; i+=pixels.Channels {
			r, g, bl:=float64(src[i]), float64(src[i+1]), float64(src[i+2])
			for c:=0; c<3; c++ {
				m:=&sepiaMatrix[c]
				dst[i+c]=clampTrunc(m[0]*r + m[1]*g + m[2]*bl)
			}
			dst[i+3]=src[i+3]
		}
	})
	return out, nil
}

// Clamps to [0,255] and truncates toward zero. NaN maps to 0
func clampTrunc(v float64) uint8 {
	if !(v>0) { return 0 }
	if v>=255 { return 255 }
	return uint8(v)
}

// Extracts a single channel plane of integer luma values
func LumaPlaneInt(b *pixels.Buffer, plane []int32) []int32 {
	if plane==nil { plane=make([]int32, b.Pixels()) }
	pix:=b.Pix
	for i:=range plane[:b.Pixels()] {
		o:=i*pixels.Channels
		plane[i]=LumaInt(pix[o], pix[o+1], pix[o+2])
	}
	return plane
}

// Extracts a single channel plane of integer luma values as float32, for the Canny blur stage
func LumaPlaneFloat(b *pixels.Buffer, plane []float32) []float32 {
	if plane==nil { plane=make([]float32, b.Pixels()) }
	pix:=b.Pix
	for i:=range plane[:b.Pixels()] {
		o:=i*pixels.Channels
		plane[i]=float32(LumaInt(pix[o], pix[o+1], pix[o+2]))
	}
	return plane
}
