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


// Separable convolution with clamp-to-edge borders, for RGBA buffers and single channel planes.
package convolve

import (
	"fmt"
	"math"
	"gonum.org/v1/gonum/floats"
	"github.com/mlnoga/edgelab/internal"
	"github.com/mlnoga/edgelab/internal/pixels"
)

// Default Gaussian blur: 25 taps with sigma 10
const (
	DefaultBlurSize  = 25
	DefaultBlurSigma = 10.0
)

// Blur allocates its result
const BlurMode = pixels.Allocating

// A symmetric 1D convolution kernel. Each pass divides the weighted sum by Norm
type Kernel struct {
	Taps []float32
	Norm float32
}

// Creates a kernel from the given taps and normalization divisor. Length must be odd
func NewKernel(taps []float32, norm float32) (Kernel, error) {
	if len(taps)==0 || len(taps)%2==0 {
		return Kernel{}, fmt.Errorf("%w: kernel length %d must be odd", pixels.ErrInvalidConfiguration, len(taps))
	}
	if !(norm>0) || math.IsInf(float64(norm), 0) {
		return Kernel{}, fmt.Errorf("%w: kernel norm %g must be positive", pixels.ErrInvalidConfiguration, norm)
	}
	return Kernel{Taps: append([]float32(nil), taps...), Norm: norm}, nil
}

// Half width of the kernel, excluding the center tap
func (k Kernel) Radius() int {
	return (len(k.Taps)-1)/2
}

// Generates a 1D gaussian kernel with the given odd number of taps and standard deviation.
// Weights are normalized to sum to one, so Norm is 1
func GaussianKernel1D(size int, sigma float64) (Kernel, error) {
	if size<=0 || size%2==0 {
		return Kernel{}, fmt.Errorf("%w: gaussian kernel size %d must be odd", pixels.ErrInvalidConfiguration, size)
	}
	if !(sigma>0) || math.IsInf(sigma, 0) {
		return Kernel{}, fmt.Errorf("%w: gaussian sigma %g must be positive", pixels.ErrInvalidConfiguration, sigma)
	}
	radius :=size/2
	weights:=make([]float64, size)
	for i:=range weights {
		d:=float64(i-radius)
		weights[i]=math.Exp(-(d*d)/(2*sigma*sigma))
	}
	floats.Scale(1/floats.Sum(weights), weights)

	taps:=make([]float32, size)
	for i, w:=range weights {
		taps[i]=float32(w)
	}
	return Kernel{Taps: taps, Norm: 1}, nil
}

// Clamps coordinate into [0, size-1]
func clamp(x, size int) int {
	if x<0 { return 0 }
	if x>=size { return size-1 }
	return x
}

// Convolves interleaved data with the given number of channels along the x axis, and stores the
// result in res. Each channel is filtered independently. Out of range samples are clamped to the edge
func ConvolveX(res, data []float32, width, channels int, k Kernel) {
	stride:=width*channels
	height:=len(data)/stride
	r     :=k.Radius()
	internal.ParallelRows(height, func(lower, upper int) {
		for y:=lower; y<upper; y++ {
			row:=data[y*stride:(y+1)*stride]
			out:=res [y*stride:(y+1)*stride]
			for x:=0; x<width; x++ {
				for c:=0; c<channels; c++ {
					sum:=float32(0)
					for i:=-r; i<=r; i++ {
						sum+=row[clamp(x+i, width)*channels+c]*k.Taps[i+r]
					}
					out[x*channels+c]=sum/k.Norm
				}
			}
		}
	})
}

// Convolves interleaved data with the given number of channels along the y axis, and stores the
// result in res. Each channel is filtered independently. Out of range samples are clamped to the edge
func ConvolveY(res, data []float32, width, channels int, k Kernel) {
	stride:=width*channels
	height:=len(data)/stride
	r     :=k.Radius()
	internal.ParallelRows(height, func(lower, upper int) {
		for y:=lower; y<upper; y++ {
			out:=res[y*stride:(y+1)*stride]
			for j:=range out {
				sum:=float32(0)
				for i:=-r; i<=r; i++ {
					sum+=data[clamp(y+i, height)*stride+j]*k.Taps[i+r]
				}
				out[j]=sum/k.Norm
			}
		}
	})
}

// Applies the kernel horizontally, then vertically, to a single channel plane of given width.
// Returns the result in a newly allocated plane
func BlurPlane(plane []float32, width int, k Kernel) []float32 {
	tmp:=internal.GetArrayOfFloat32FromPool(len(plane))
	defer internal.PutArrayOfFloat32IntoPool(tmp)
	res:=make([]float32, len(plane))
	ConvolveX(tmp, plane, width, 1, k)
	ConvolveY(res, tmp,   width, 1, k)
	return res
}

// Applies the kernel horizontally, then vertically, to all four channels of the buffer including alpha.
// Results are rounded and clamped to [0,255]. Returns a new buffer
func BlurRGBA(b *pixels.Buffer, k Kernel) (*pixels.Buffer, error) {
	if err:=b.Validate(); err!=nil { return nil, err }
	if len(k.Taps)%2==0 || !(k.Norm>0) {
		return nil, fmt.Errorf("%w: kernel with %d taps and norm %g", pixels.ErrInvalidConfiguration, len(k.Taps), k.Norm)
	}

	n   :=len(b.Pix)
	data:=internal.GetArrayOfFloat32FromPool(n)
	tmp :=internal.GetArrayOfFloat32FromPool(n)
	defer internal.PutArrayOfFloat32IntoPool(data)
	defer internal.PutArrayOfFloat32IntoPool(tmp)

	for i, v:=range b.Pix {
		data[i]=float32(v)
	}
	ConvolveX(tmp,  data, b.Width, pixels.Channels, k)
	ConvolveY(data, tmp,  b.Width, pixels.Channels, k)

	out:=b.NewLike()
	for i, v:=range data {
		out.Pix[i]=roundClamp(v)
	}
	return out, nil
}

// Blurs the buffer with the default 25 tap gaussian of sigma 10, generated per call. Returns a new buffer
func GaussianBlur(b *pixels.Buffer) (*pixels.Buffer, error) {
	k, err:=GaussianKernel1D(DefaultBlurSize, DefaultBlurSigma)
	if err!=nil { return nil, err }
	return BlurRGBA(b, k)
}

// Rounds to nearest and clamps into [0,255]. NaN maps to 0
func roundClamp(v float32) uint8 {
	r:=math.Round(float64(v))
	if !(r>0) { return 0 }
	if r>=255 { return 255 }
	return uint8(r)
}
