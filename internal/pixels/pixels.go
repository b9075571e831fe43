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


package pixels

import (
	"errors"
	"fmt"
)

// Bytes per pixel. Channel order is R,G,B,A
const Channels=4

// A caller broke the buffer contract: length is not width*height*4, or a dimension is not positive.
// Raised before any pixel is written.
var ErrContractViolation=errors.New("contract violation")

// An unrecognized configuration value. Raised before any pixel work begins.
var ErrInvalidConfiguration=errors.New("invalid configuration")

// Declares whether an operation mutates its input buffer, or returns a newly allocated one
type Mode int

const (
	InPlace    Mode = iota  // mutates the given buffer, returns it
	Allocating              // leaves the given buffer untouched, returns a new buffer of identical shape
)

func (m Mode) String() string {
	switch m {
	case InPlace:    return "in-place"
	case Allocating: return "allocating"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// An RGBA pixel buffer. Row-major, no padding between rows
type Buffer struct {
	Width  int
	Height int
	Pix    []byte
}

// Creates a zero-initialized buffer of the given dimensions
func New(width, height int) (*Buffer, error) {
	if width<=0 || height<=0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d must be positive", ErrContractViolation, width, height)
	}
	return &Buffer{Width: width, Height: height, Pix: make([]byte, width*height*Channels)}, nil
}

// Wraps existing pixel data without copying. Validates the contract
func Wrap(pix []byte, width, height int) (*Buffer, error) {
	b:=&Buffer{Width: width, Height: height, Pix: pix}
	if err:=b.Validate(); err!=nil { return nil, err }
	return b, nil
}

// Checks the buffer invariant: positive dimensions and len(Pix)==Width*Height*4
func (b *Buffer) Validate() error {
	if b==nil { return fmt.Errorf("%w: nil buffer", ErrContractViolation) }
	return ValidateDims(len(b.Pix), b.Width, b.Height)
}

// Checks that a byte length matches the given dimensions
func ValidateDims(length, width, height int) error {
	if width<=0 || height<=0 {
		return fmt.Errorf("%w: dimensions %dx%d must be positive", ErrContractViolation, width, height)
	}
	want:=width*height*Channels
	if want/Channels/width!=height {
		return fmt.Errorf("%w: dimensions %dx%d overflow", ErrContractViolation, width, height)
	}
	if length!=want {
		return fmt.Errorf("%w: buffer length %d, want %d for %dx%d RGBA", ErrContractViolation, length, want, width, height)
	}
	return nil
}

// Number of pixels
func (b *Buffer) Pixels() int {
	return b.Width*b.Height
}

// Returns a new buffer of identical shape with all bytes set to zero
func (b *Buffer) NewLike() *Buffer {
	return &Buffer{Width: b.Width, Height: b.Height, Pix: make([]byte, len(b.Pix))}
}

// Returns a deep copy
func (b *Buffer) Clone() *Buffer {
	return &Buffer{Width: b.Width, Height: b.Height, Pix: append([]byte(nil), b.Pix...)}
}

// Returns the R,G,B,A values of the pixel at x,y
func (b *Buffer) At(x, y int) (r, g, bl, a uint8) {
	i:=(y*b.Width+x)*Channels
	return b.Pix[i], b.Pix[i+1], b.Pix[i+2], b.Pix[i+3]
}

// Sets the pixel at x,y
func (b *Buffer) Set(x, y int, r, g, bl, a uint8) {
	i:=(y*b.Width+x)*Channels
	b.Pix[i], b.Pix[i+1], b.Pix[i+2], b.Pix[i+3] = r, g, bl, a
}

// Fills all pixels with the given color
func (b *Buffer) Fill(r, g, bl, a uint8) {
	for i:=0; i<len(b.Pix); i+=Channels {
		b.Pix[i], b.Pix[i+1], b.Pix[i+2], b.Pix[i+3] = r, g, bl, a
	}
}

// True if x,y lies on the outermost row or column
func (b *Buffer) IsBorder(x, y int) bool {
	return x==0 || y==0 || x==b.Width-1 || y==b.Height-1
}

// Dimensions as a human readable string, for log output
func (b *Buffer) DimensionsToString() string {
	return fmt.Sprintf("%dx%d", b.Width, b.Height)
}
