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


// JSON configurable operators for the pixel filters.
package filter

import (
	"encoding/json"
	"fmt"
	"github.com/mlnoga/edgelab/internal/convolve"
	"github.com/mlnoga/edgelab/internal/edge"
	"github.com/mlnoga/edgelab/internal/ops"
	"github.com/mlnoga/edgelab/internal/pixels"
	"github.com/mlnoga/edgelab/internal/pointwise"
)


// Converts to grayscale in place
type OpGrayscale struct {
	ops.OpBase
	Integer     bool      `json:"integer"`   // use the (77R+150G+29B)>>8 approximation
}

var _ ops.Operator = (*OpGrayscale)(nil) // this type is an Operator
func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpGrayscaleDefault() })} // register the operator for JSON decoding

func NewOpGrayscaleDefault() *OpGrayscale { return NewOpGrayscale(false) }

func NewOpGrayscale(integer bool) *OpGrayscale {
	return &OpGrayscale{
		OpBase  : ops.OpBase{Type: "grayscale", Active: true},
		Integer : integer,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpGrayscale) UnmarshalJSON(data []byte) error {
	type defaults OpGrayscale
	def:=defaults( *NewOpGrayscaleDefault() )
	err:=json.Unmarshal(data, &def)
	if err!=nil { return err }
	*op=OpGrayscale(def)
	return nil
}

func (op *OpGrayscale) Contract() pixels.Mode { return pointwise.GrayscaleMode }

func (op *OpGrayscale) Apply(b *pixels.Buffer, c *ops.Context) (*pixels.Buffer, error) {
	if !op.Active { return b, nil }
	if err:=b.Validate(); err!=nil { return nil, err }
	fmt.Fprintf(c.Log, "%s: converting %s pixels (integer luma %v)\n", op.Type, b.DimensionsToString(), op.Integer)
	var err error
	if op.Integer {
		err=pointwise.GrayscaleInt(b)
	} else {
		err=pointwise.Grayscale(b)
	}
	if err!=nil { return nil, err }
	return b, nil
}


// Applies the sepia matrix into a new buffer
type OpSepia struct {
	ops.OpBase
}

var _ ops.Operator = (*OpSepia)(nil) // this type is an Operator
func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpSepiaDefault() })} // register the operator for JSON decoding

func NewOpSepiaDefault() *OpSepia { return NewOpSepia(true) }

func NewOpSepia(active bool) *OpSepia {
	return &OpSepia{OpBase: ops.OpBase{Type: "sepia", Active: active}}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpSepia) UnmarshalJSON(data []byte) error {
	type defaults OpSepia
	def:=defaults( *NewOpSepiaDefault() )
	err:=json.Unmarshal(data, &def)
	if err!=nil { return err }
	*op=OpSepia(def)
	return nil
}

func (op *OpSepia) Contract() pixels.Mode { return pointwise.SepiaMode }

func (op *OpSepia) Apply(b *pixels.Buffer, c *ops.Context) (*pixels.Buffer, error) {
	if !op.Active { return b, nil }
	if err:=b.Validate(); err!=nil { return nil, err }
	fmt.Fprintf(c.Log, "%s: toning %s pixels\n", op.Type, b.DimensionsToString())
	return pointwise.Sepia(b)
}


// Separable gaussian blur of all four channels
type OpBlur struct {
	ops.OpBase
	Size        int       `json:"size"`
	Sigma       float64   `json:"sigma"`
}

var _ ops.Operator = (*OpBlur)(nil) // this type is an Operator
func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpBlurDefault() })} // register the operator for JSON decoding

func NewOpBlurDefault() *OpBlur { return NewOpBlur(convolve.DefaultBlurSize, convolve.DefaultBlurSigma) }

func NewOpBlur(size int, sigma float64) *OpBlur {
	return &OpBlur{
		OpBase : ops.OpBase{Type: "blur", Active: size>1 && sigma>0},
		Size   : size,
		Sigma  : sigma,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpBlur) UnmarshalJSON(data []byte) error {
	type defaults OpBlur
	def:=defaults( *NewOpBlurDefault() )
	err:=json.Unmarshal(data, &def)
	if err!=nil { return err }
	*op=OpBlur(def)
	return nil
}

func (op *OpBlur) Contract() pixels.Mode { return convolve.BlurMode }

func (op *OpBlur) Apply(b *pixels.Buffer, c *ops.Context) (*pixels.Buffer, error) {
	if !op.Active { return b, nil }
	if err:=b.Validate(); err!=nil { return nil, err }
	k, err:=convolve.GaussianKernel1D(op.Size, op.Sigma)
	if err!=nil { return nil, err }
	fmt.Fprintf(c.Log, "%s: %d taps, sigma %.3g on %s pixels\n", op.Type, op.Size, op.Sigma, b.DimensionsToString())
	return convolve.BlurRGBA(b, k)
}


// Sobel edge detection, adaptive or fixed threshold
type OpSobel struct {
	ops.OpBase
	Mode        edge.SobelMode  `json:"mode"`
	Percentile  float64         `json:"percentile"`
	Threshold   int32           `json:"threshold"`
}

var _ ops.Operator = (*OpSobel)(nil) // this type is an Operator
func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpSobelDefault() })} // register the operator for JSON decoding

func NewOpSobelDefault() *OpSobel { return NewOpSobel(edge.DefaultSobelOptions()) }

func NewOpSobel(o edge.SobelOptions) *OpSobel {
	return &OpSobel{
		OpBase     : ops.OpBase{Type: "sobel", Active: true},
		Mode       : o.Mode,
		Percentile : o.Percentile,
		Threshold  : o.Threshold,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpSobel) UnmarshalJSON(data []byte) error {
	type defaults OpSobel
	def:=defaults( *NewOpSobelDefault() )
	err:=json.Unmarshal(data, &def)
	if err!=nil { return err }
	*op=OpSobel(def)
	return op.Options().Validate()
}

func (op *OpSobel) Options() edge.SobelOptions {
	return edge.SobelOptions{Mode: op.Mode, Percentile: op.Percentile, Threshold: op.Threshold}
}

func (op *OpSobel) Contract() pixels.Mode { return edge.SobelContract }

func (op *OpSobel) Apply(b *pixels.Buffer, c *ops.Context) (*pixels.Buffer, error) {
	if !op.Active { return b, nil }
	out, err:=edge.Sobel(b, op.Options())
	if err!=nil { return nil, err }
	fmt.Fprintf(c.Log, "%s: %v mode found %d edge pixels in %s\n", op.Type, op.Mode, edge.CountEdges(out), b.DimensionsToString())
	return out, nil
}


// Canny edge detection with strength and stroke presets. A positive legacy sigma overrides
// the strength, see edge.StrengthFromLegacySigma. HighPercentile and LowRatio are accepted
// for compatibility and ignored
type OpCanny struct {
	ops.OpBase
	Strength        edge.Strength `json:"strength"`
	Stroke          edge.Stroke   `json:"stroke"`
	Sigma           float64       `json:"sigma,omitempty"`
	HighPercentile  float64       `json:"highPercentile,omitempty"`
	LowRatio        float64       `json:"lowRatio,omitempty"`
}

var _ ops.Operator = (*OpCanny)(nil) // this type is an Operator
func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpCannyDefault() })} // register the operator for JSON decoding

func NewOpCannyDefault() *OpCanny { return NewOpCanny(edge.DefaultCannyOptions()) }

func NewOpCanny(o edge.CannyOptions) *OpCanny {
	return &OpCanny{
		OpBase   : ops.OpBase{Type: "canny", Active: true},
		Strength : o.Strength,
		Stroke   : o.Stroke,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpCanny) UnmarshalJSON(data []byte) error {
	type defaults OpCanny
	def:=defaults( *NewOpCannyDefault() )
	err:=json.Unmarshal(data, &def)
	if err!=nil { return err }
	*op=OpCanny(def)
	return op.Options().Validate()
}

// Effective options, after applying the legacy sigma if present
func (op *OpCanny) Options() edge.CannyOptions {
	o:=edge.CannyOptions{Strength: op.Strength, Stroke: op.Stroke}
	if op.Sigma>0 { o.Strength=edge.StrengthFromLegacySigma(op.Sigma) }
	return o
}

func (op *OpCanny) Contract() pixels.Mode { return edge.CannyContract }

func (op *OpCanny) Apply(b *pixels.Buffer, c *ops.Context) (*pixels.Buffer, error) {
	if !op.Active { return b, nil }
	o:=op.Options()
	r, err:=edge.CannyStages(b, o)
	if err!=nil { return nil, err }
	edges:=0
	for _, m:=range r.Mask { if m { edges++ } }
	fmt.Fprintf(c.Log, "%s: %v strength, %v stroke, thresholds %.4g/%.4g, %d edge pixels in %s\n",
		op.Type, o.Strength, o.Stroke, r.High, r.Low, edges, b.DimensionsToString())
	return edge.MaskToRGBA(r.Mask, b.Width, b.Height), nil
}
