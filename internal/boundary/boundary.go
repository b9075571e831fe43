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


// Address based entry points over an arena. Every filter mutates the caller's region in place,
// filters which allocate internally copy their result back.
package boundary

import (
	"errors"
	"github.com/mlnoga/edgelab/internal/arena"
	"github.com/mlnoga/edgelab/internal/convolve"
	"github.com/mlnoga/edgelab/internal/edge"
	"github.com/mlnoga/edgelab/internal/pixels"
	"github.com/mlnoga/edgelab/internal/pointwise"
)

type Boundary struct {
	Arena *arena.Arena
}

func New(a *arena.Arena) *Boundary {
	return &Boundary{Arena: a}
}

// Reserves size bytes. Fails with arena.ErrAllocationFailure when the arena is full
func (b *Boundary) Alloc(size int) (arena.Address, error) {
	return b.Arena.Alloc(size)
}

// Like Alloc, but on allocation failure grows the arena by enough pages for the request and
// retries once. Returns the growth if one happened, so callers can re-resolve their slices
func (b *Boundary) AllocWithGrowth(size int) (arena.Address, *arena.Growth, error) {
	addr, err:=b.Arena.Alloc(size)
	if err==nil || !errors.Is(err, arena.ErrAllocationFailure) { return addr, nil, err }

	g, err:=b.Arena.Grow(arena.PagesFor(size))
	if err!=nil { return 0, nil, err }
	addr, err=b.Arena.Alloc(size)
	if err!=nil { return 0, &g, err }
	return addr, &g, nil
}

func (b *Boundary) Free(addr arena.Address, size int) error {
	return b.Arena.Free(addr, size)
}

func (b *Boundary) AllocatedMemoryMB() float64 {
	return b.Arena.AllocatedMB()
}

// Runs a filter on the width x height RGBA region at addr, holding the arena lock.
// A result buffer other than the input is copied back into the region
func (b *Boundary) apply(addr arena.Address, width, height int, filter func(*pixels.Buffer) (*pixels.Buffer, error)) error {
	if err:=pixels.ValidateDims(width*height*pixels.Channels, width, height); err!=nil { return err }
	size:=width*height*pixels.Channels
	return b.Arena.With(addr, size, func(mem []byte) error {
		buf:=&pixels.Buffer{Width: width, Height: height, Pix: mem}
		out, err:=filter(buf)
		if err!=nil { return err }
		if out!=nil && out!=buf { copy(mem, out.Pix) }
		return nil
	})
}

func (b *Boundary) Grayscale(addr arena.Address, width, height int) error {
	return b.apply(addr, width, height, func(buf *pixels.Buffer) (*pixels.Buffer, error) {
		return buf, pointwise.Grayscale(buf)
	})
}

func (b *Boundary) Sepia(addr arena.Address, width, height int) error {
	return b.apply(addr, width, height, pointwise.Sepia)
}

func (b *Boundary) GaussianBlur(addr arena.Address, width, height int) error {
	return b.apply(addr, width, height, convolve.GaussianBlur)
}

// Fixed threshold Sobel: transparent border, opaque interior
func (b *Boundary) EdgeDetectionSobel(addr arena.Address, width, height int) error {
	return b.sobel(addr, width, height, edge.LegacySobelOptions())
}

// Adaptive Sobel thresholded at the given percentile of interior magnitudes
func (b *Boundary) EdgeDetectionSobelAdaptive(addr arena.Address, width, height int, percentile float64) error {
	o:=edge.DefaultSobelOptions()
	o.Percentile=percentile
	return b.sobel(addr, width, height, o)
}

func (b *Boundary) sobel(addr arena.Address, width, height int, o edge.SobelOptions) error {
	if err:=o.Validate(); err!=nil { return err }
	return b.apply(addr, width, height, func(buf *pixels.Buffer) (*pixels.Buffer, error) {
		return edge.Sobel(buf, o)
	})
}

// Canny with medium strength and medium stroke
func (b *Boundary) EdgeDetectionCanny(addr arena.Address, width, height int) error {
	return b.canny(addr, width, height, edge.DefaultCannyOptions())
}

func (b *Boundary) EdgeDetectionCannyStrength(addr arena.Address, width, height int, strength string) error {
	s, err:=edge.ParseStrength(strength)
	if err!=nil { return err }
	return b.canny(addr, width, height, edge.CannyOptions{Strength: s, Stroke: edge.StrokeMedium})
}

func (b *Boundary) EdgeDetectionCannyStrengthStroke(addr arena.Address, width, height int, strength, stroke string) error {
	s, err:=edge.ParseStrength(strength)
	if err!=nil { return err }
	k, err:=edge.ParseStroke(stroke)
	if err!=nil { return err }
	return b.canny(addr, width, height, edge.CannyOptions{Strength: s, Stroke: k})
}

// Legacy numeric configuration. Only sigma selects the strength, see edge.StrengthFromLegacySigma.
// highPercentile and lowRatio are accepted and ignored
func (b *Boundary) EdgeDetectionCannyLegacy(addr arena.Address, width, height int, highPercentile, lowRatio, sigma float64) error {
	o:=edge.CannyOptions{Strength: edge.StrengthFromLegacySigma(sigma), Stroke: edge.StrokeMedium}
	return b.canny(addr, width, height, o)
}

func (b *Boundary) canny(addr arena.Address, width, height int, o edge.CannyOptions) error {
	if err:=o.Validate(); err!=nil { return err }
	return b.apply(addr, width, height, func(buf *pixels.Buffer) (*pixels.Buffer, error) {
		return edge.Canny(buf, o)
	})
}
