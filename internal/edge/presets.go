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
	"strings"
	"github.com/mlnoga/edgelab/internal/convolve"
	"github.com/mlnoga/edgelab/internal/pixels"
)

// Canny detection strength. Lower strength blurs wider and detects fewer, cleaner edges
type Strength int

const (
	StrengthLow Strength = iota
	StrengthMedium
	StrengthHigh
)

// Blur kernel and hysteresis threshold fractions of the maximum NMS value
type strengthPreset struct {
	Name     string
	Taps     []float32
	Norm     float32
	HighFrac float32
	LowFrac  float32
}

var strengthPresets=[...]strengthPreset{
	StrengthLow:    {"low",    []float32{1, 6, 15, 20, 15, 6, 1}, 64, 0.25, 0.10},
	StrengthMedium: {"medium", []float32{1, 4, 6, 4, 1},          16, 0.20, 0.08},
	StrengthHigh:   {"high",   []float32{1, 2, 1},                 4, 0.15, 0.06},
}

func (s Strength) valid() bool {
	return s>=0 && int(s)<len(strengthPresets)
}

func (s Strength) String() string {
	if !s.valid() { return fmt.Sprintf("Strength(%d)", int(s)) }
	return strengthPresets[s].Name
}

// Blur kernel of this strength
func (s Strength) Kernel() convolve.Kernel {
	p:=&strengthPresets[s]
	return convolve.Kernel{Taps: p.Taps, Norm: p.Norm}
}

// High and low hysteresis thresholds as fractions of the maximum NMS value
func (s Strength) Fractions() (high, low float32) {
	p:=&strengthPresets[s]
	return p.HighFrac, p.LowFrac
}

func (s Strength) MarshalText() ([]byte, error) {
	if !s.valid() { return nil, fmt.Errorf("%w: strength %d", pixels.ErrInvalidConfiguration, int(s)) }
	return []byte(s.String()), nil
}

func (s *Strength) UnmarshalText(text []byte) error {
	v, err:=ParseStrength(string(text))
	if err!=nil { return err }
	*s=v
	return nil
}

// Parses a strength name, ignoring case. The empty string selects medium
func ParseStrength(name string) (Strength, error) {
	name=strings.ToLower(strings.TrimSpace(name))
	if name=="" { return StrengthMedium, nil }
	for i, p:=range strengthPresets {
		if p.Name==name { return Strength(i), nil }
	}
	return StrengthMedium, fmt.Errorf("%w: unknown strength %q, want low, medium or high", pixels.ErrInvalidConfiguration, name)
}

// Compatibility shim for the legacy numeric configuration (high percentile, low ratio, sigma).
// Only sigma is used: sigma>=1.8 selects low, sigma<1.0 selects high, anything else medium.
// The mapping is approximate. Keep it unchanged, old callers depend on it
func StrengthFromLegacySigma(sigma float64) Strength {
	switch {
	case sigma>=1.8: return StrengthLow
	case sigma<1.0:  return StrengthHigh
	default:         return StrengthMedium
	}
}


// Canny stroke width, applied as binary dilation of the final edge mask
type Stroke int

const (
	StrokeThin Stroke = iota
	StrokeMedium
	StrokeThick
)

type strokePreset struct {
	Name       string
	Radius     int
	Iterations int
}

var strokePresets=[...]strokePreset{
	StrokeThin:   {"thin",   0, 0},
	StrokeMedium: {"medium", 1, 1},
	StrokeThick:  {"thick",  2, 1},
}

func (s Stroke) valid() bool {
	return s>=0 && int(s)<len(strokePresets)
}

func (s Stroke) String() string {
	if !s.valid() { return fmt.Sprintf("Stroke(%d)", int(s)) }
	return strokePresets[s].Name
}

// Dilation radius and number of iterations of this stroke
func (s Stroke) Dilation() (radius, iterations int) {
	p:=&strokePresets[s]
	return p.Radius, p.Iterations
}

func (s Stroke) MarshalText() ([]byte, error) {
	if !s.valid() { return nil, fmt.Errorf("%w: stroke %d", pixels.ErrInvalidConfiguration, int(s)) }
	return []byte(s.String()), nil
}

func (s *Stroke) UnmarshalText(text []byte) error {
	v, err:=ParseStroke(string(text))
	if err!=nil { return err }
	*s=v
	return nil
}

// Parses a stroke name, ignoring case. The empty string selects medium
func ParseStroke(name string) (Stroke, error) {
	name=strings.ToLower(strings.TrimSpace(name))
	if name=="" { return StrokeMedium, nil }
	for i, p:=range strokePresets {
		if p.Name==name { return Stroke(i), nil }
	}
	return StrokeMedium, fmt.Errorf("%w: unknown stroke %q, want thin, medium or thick", pixels.ErrInvalidConfiguration, name)
}
