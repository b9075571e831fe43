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


// Edge detectors on RGBA buffers: a thresholded Sobel detector and the Canny pipeline.
package edge

import (
	"fmt"
	"math"
	"strings"
	"github.com/mlnoga/edgelab/internal"
	"github.com/mlnoga/edgelab/internal/gradient"
	"github.com/mlnoga/edgelab/internal/pixels"
	"github.com/mlnoga/edgelab/internal/pointwise"
	"github.com/mlnoga/edgelab/internal/qsort"
)

// Both detectors allocate their result
const (
	SobelContract = pixels.Allocating
	CannyContract = pixels.Allocating
)

// Sobel thresholding mode
type SobelMode int

const (
	// Threshold at a percentile of all interior squared magnitudes. Output is fully opaque
	SobelAdaptive SobelMode = iota
	// Constant squared threshold. Interior pixels are opaque, border pixels transparent black
	SobelFixed
)

const (
	DefaultPercentile     = 0.85
	DefaultFixedThreshold = 4000
)

var sobelModeNames=[...]string{SobelAdaptive: "adaptive", SobelFixed: "fixed"}

func (m SobelMode) String() string {
	if m<0 || int(m)>=len(sobelModeNames) { return fmt.Sprintf("SobelMode(%d)", int(m)) }
	return sobelModeNames[m]
}

func (m SobelMode) MarshalText() ([]byte, error) {
	if m<0 || int(m)>=len(sobelModeNames) { return nil, fmt.Errorf("%w: sobel mode %d", pixels.ErrInvalidConfiguration, int(m)) }
	return []byte(m.String()), nil
}

func (m *SobelMode) UnmarshalText(text []byte) error {
	v, err:=ParseSobelMode(string(text))
	if err!=nil { return err }
	*m=v
	return nil
}

// Parses a Sobel mode, ignoring case. "legacy" is an alias for fixed, the empty string selects adaptive
func ParseSobelMode(name string) (SobelMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "adaptive":  return SobelAdaptive, nil
	case "fixed", "legacy": return SobelFixed, nil
	}
	return SobelAdaptive, fmt.Errorf("%w: unknown sobel mode %q, want adaptive or fixed", pixels.ErrInvalidConfiguration, name)
}

type SobelOptions struct {
	Mode       SobelMode
	Percentile float64  // adaptive mode, in [0,1]
	Threshold  int32    // fixed mode, compared against squared magnitudes
}

func DefaultSobelOptions() SobelOptions {
	return SobelOptions{Mode: SobelAdaptive, Percentile: DefaultPercentile, Threshold: DefaultFixedThreshold}
}

func LegacySobelOptions() SobelOptions {
	return SobelOptions{Mode: SobelFixed, Percentile: DefaultPercentile, Threshold: DefaultFixedThreshold}
}

func (o SobelOptions) Validate() error {
	switch o.Mode {
	case SobelAdaptive:
		if math.IsNaN(o.Percentile) || o.Percentile<0 || o.Percentile>1 {
			return fmt.Errorf("%w: percentile %g outside [0,1]", pixels.ErrInvalidConfiguration, o.Percentile)
		}
	case SobelFixed:
		if o.Threshold<0 {
			return fmt.Errorf("%w: negative threshold %d", pixels.ErrInvalidConfiguration, o.Threshold)
		}
	default:
		return fmt.Errorf("%w: sobel mode %d", pixels.ErrInvalidConfiguration, int(o.Mode))
	}
	return nil
}

// Detects edges with the Sobel operator on integer luma. Returns a new buffer with edges
// in opaque white. In adaptive mode all other pixels are opaque black and the threshold is the
// given percentile of the nonzero interior squared magnitudes, so flat regions never count as edges.
// In fixed mode interior non-edges are opaque black and border pixels are transparent black
func Sobel(b *pixels.Buffer, o SobelOptions) (*pixels.Buffer, error) {
	if err:=b.Validate(); err!=nil { return nil, err }
	if err:=o.Validate(); err!=nil { return nil, err }

	w, h :=b.Width, b.Height
	n    :=w*h
	luma :=pointwise.LumaPlaneInt(b, internal.GetArrayOfInt32FromPool(n))
	mags :=gradient.SquaredMagnitudes(luma, w, h, internal.GetArrayOfInt32FromPool(n))
	internal.PutArrayOfInt32IntoPool(luma)
	defer internal.PutArrayOfInt32IntoPool(mags)

	out:=b.NewLike()
	if o.Mode==SobelAdaptive {
		for i:=pixels.Channels-1; i<len(out.Pix); i+=pixels.Channels {
			out.Pix[i]=255
		}
	}
	if !gradient.HasInterior(w, h) { return out, nil }

	threshold:=o.Threshold
	if o.Mode==SobelAdaptive {
		scratch:=internal.GetArrayOfInt32FromPool((w-2)*(h-2))
		interior:=nonzero(gradient.Interior(mags, w, h, scratch))
		threshold=qsort.PercentileInt32(interior, o.Percentile)
		internal.PutArrayOfInt32IntoPool(scratch)
		if threshold==0 { return out, nil }  // no gradients, no edges
	}

	internal.ParallelRows(h-2, func(lower, upper int) {
		for y:=lower+1; y<upper+1; y++ {
			for i:=y*w+1; i<(y+1)*w-1; i++ {
				off:=i*pixels.Channels
				if mags[i]>=threshold {
					out.Pix[off], out.Pix[off+1], out.Pix[off+2], out.Pix[off+3] = 255, 255, 255, 255
				} else {
					out.Pix[off+3]=255
				}
			}
		}
	})
	return out, nil
}

// Compacts the nonzero values to the front of a, in place
func nonzero(a []int32) []int32 {
	n:=0
	for _, v:=range a {
		if v!=0 { a[n]=v; n++ }
	}
	return a[:n]
}

// Number of edge pixels in a detector output
func CountEdges(b *pixels.Buffer) int {
	count:=0
	for i:=0; i<len(b.Pix); i+=pixels.Channels {
		if b.Pix[i]==255 { count++ }
	}
	return count
}
