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


// Similarity metrics between two RGBA buffers of equal shape.
package compare

import (
	"fmt"
	"math"
	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"github.com/mlnoga/edgelab/internal"
	"github.com/mlnoga/edgelab/internal/pixels"
)

// Peak value of a channel
const maxValue=255.0

type Result struct {
	MSE           float64     `json:"mse"`           // over all bytes, alpha included
	PSNR          float64     `json:"psnr"`          // in dB, +Inf for identical buffers
	ChannelMAE    [4]float64  `json:"channelMAE"`    // mean absolute difference per channel
	MeanDeltaE    float64     `json:"meanDeltaE"`    // CIE76 distance in Lab, ignoring alpha
	StdDevDeltaE  float64     `json:"stdDevDeltaE"`
	MaxDeltaE     float64     `json:"maxDeltaE"`
}

func (r *Result) String() string {
	return fmt.Sprintf("MSE %.4g PSNR %.4g dB, MAE R %.3g G %.3g B %.3g A %.3g, deltaE mean %.4g sd %.4g max %.4g",
		r.MSE, r.PSNR, r.ChannelMAE[0], r.ChannelMAE[1], r.ChannelMAE[2], r.ChannelMAE[3],
		r.MeanDeltaE, r.StdDevDeltaE, r.MaxDeltaE)
}

func checkShapes(a, b *pixels.Buffer) error {
	if err:=a.Validate(); err!=nil { return err }
	if err:=b.Validate(); err!=nil { return err }
	if a.Width!=b.Width || a.Height!=b.Height {
		return fmt.Errorf("%w: comparing %s with %s pixels", pixels.ErrContractViolation, a.DimensionsToString(), b.DimensionsToString())
	}
	return nil
}

// Mean squared error over all bytes
func MSE(a, b *pixels.Buffer) (float64, error) {
	if err:=checkShapes(a, b); err!=nil { return 0, err }
	sum:=uint64(0)
	for i, v:=range a.Pix {
		d:=int64(v)-int64(b.Pix[i])
		sum+=uint64(d*d)
	}
	return float64(sum)/float64(len(a.Pix)), nil
}

// Peak signal to noise ratio in dB. Identical buffers give +Inf
func PSNR(a, b *pixels.Buffer) (float64, error) {
	mse, err:=MSE(a, b)
	if err!=nil { return 0, err }
	return psnrFromMSE(mse), nil
}

func psnrFromMSE(mse float64) float64 {
	if mse==0 { return math.Inf(1) }
	return 10*math.Log10(maxValue*maxValue/mse)
}

func toColorful(pix []byte, o int) colorful.Color {
	return colorful.Color{R: float64(pix[o])/maxValue, G: float64(pix[o+1])/maxValue, B: float64(pix[o+2])/maxValue}
}

// Computes all metrics
func Compare(a, b *pixels.Buffer) (*Result, error) {
	mse, err:=MSE(a, b)
	if err!=nil { return nil, err }
	r:=&Result{MSE: mse, PSNR: psnrFromMSE(mse)}

	n:=a.Pixels()
	var sums [4]uint64
	for i, v:=range a.Pix {
		d:=int(v)-int(b.Pix[i])
		if d<0 { d=-d }
		sums[i%pixels.Channels]+=uint64(d)
	}
	for c:=range sums {
		r.ChannelMAE[c]=float64(sums[c])/float64(n)
	}

	deltas:=make([]float64, n)
	internal.ParallelRows(a.Height, func(lower, upper int) {
		for i:=lower*a.Width; i<upper*a.Width; i++ {
			o:=i*pixels.Channels
			deltas[i]=toColorful(a.Pix, o).DistanceCIE76(toColorful(b.Pix, o))
		}
	})
	r.MeanDeltaE, r.StdDevDeltaE=stat.MeanStdDev(deltas, nil)
	if n<2 { r.StdDevDeltaE=0 }
	r.MaxDeltaE=floats.Max(deltas)
	return r, nil
}
