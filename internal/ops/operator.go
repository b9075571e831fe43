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


package ops

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"github.com/pbnjay/memory"
	"github.com/mlnoga/edgelab/internal"
	"github.com/mlnoga/edgelab/internal/imageio"
	"github.com/mlnoga/edgelab/internal/pixels"
)

// An execution context for operators
type Context struct {
	Log              io.Writer
	MemoryMB         int          // memory.TotalMemory()/1024/1024
	MaxThreads       int          `json:"maxThreads"`
}

func NewContext(log io.Writer) *Context {
	return &Context{
		Log        : log,
		MemoryMB   : int(memory.TotalMemory()/1024/1024),
		MaxThreads : internal.MaxThreads(),
	}
}


// An image processing operator. Takes one RGBA buffer and returns one, either the same buffer
// modified in place or a newly allocated one, as declared by Contract()
type Operator interface {
	GetType() string
	IsActive() bool
	Contract() pixels.Mode
	Apply(b *pixels.Buffer, c *Context) (*pixels.Buffer, error)
}

// Base type for operators, including type information for JSON serializing/deserializing
type OpBase struct {
	Type        string `json:"type"`
	Active      bool   `json:"active"`
}

func (op *OpBase) GetType() string { return op.Type }
func (op *OpBase) IsActive() bool { return op.Active }

// Factory method for operators. For JSON serializing/deserializing
type OperatorFactory func() Operator

// Mapping from operator type strings to factory method for the type
var operatorFactories=map[string]OperatorFactory{}

// Returns the operator factory for a given type string
func GetOperatorFactory(t string) OperatorFactory {
	return operatorFactories[t]
}

// Registers a given type string for a given type of Operator, identified via an exemplar generator
func SetOperatorFactory(f OperatorFactory) {
	op:=f()
	t:=op.GetType()
	if GetOperatorFactory(t)!=nil { panic(fmt.Sprintf("error: re-registering operator key %s\n", t))}
	operatorFactories[t]=f
}

// Returns the registered operator type strings
func OperatorTypes() []string {
	types:=make([]string, 0, len(operatorFactories))
	for t:=range operatorFactories {
		types=append(types, t)
	}
	return types
}

// Applies the operator and normalizes the result to an in-place update of b.
// Inactive operators leave b unchanged
func ApplyInPlace(op Operator, b *pixels.Buffer, c *Context) error {
	if err:=b.Validate(); err!=nil { return err }
	if !op.IsActive() { return nil }
	out, err:=op.Apply(b, c)
	if err!=nil { return err }
	if out!=b {
		if out==nil || out.Width!=b.Width || out.Height!=b.Height {
			return fmt.Errorf("%w: %s operator changed the image shape", pixels.ErrContractViolation, op.GetType())
		}
		copy(b.Pix, out.Pix)
	}
	return nil
}


// Loads an image from a file, ignoring any input buffer
type OpLoad struct {
	OpBase
	FileName    string  `json:"fileName"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadDefault()}) } // register the operator for JSON decoding

func NewOpLoadDefault() *OpLoad { op:=NewOpLoad(""); op.Active=true; return op }

func NewOpLoad(fileName string) *OpLoad {
	return &OpLoad{
		OpBase : OpBase{Type: "load", Active: fileName!=""},
		FileName : fileName,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpLoad) UnmarshalJSON(data []byte) error {
	type defaults OpLoad
	def:=defaults( *NewOpLoadDefault() )
	err:=json.Unmarshal(data, &def)
	if err!=nil { return err }
	*op=OpLoad(def)
	return nil
}

func (op *OpLoad) Contract() pixels.Mode { return pixels.Allocating }

// Returns true if a path is considered safe, i.e. not an absolute path,
// and doesn't contain the ".." characters to change to a parent directory
func IsPathAllowed(p string) bool {
	if filepath.IsAbs(p) { return false }          // relative paths only
	if strings.Contains(p, "..") { return false }  // no going outside the tree
	return true
}

func (op *OpLoad) Apply(b *pixels.Buffer, c *Context) (result *pixels.Buffer, err error) {
	if !op.Active { return b, nil }
	if op.FileName=="" { return nil, fmt.Errorf("%w: %s operator without file name", pixels.ErrInvalidConfiguration, op.Type) }
	result, err=imageio.ReadFile(op.FileName)
	if err!=nil { return nil, err }
	fmt.Fprintf(c.Log, "Loaded %s pixel image from %s\n", result.DimensionsToString(), op.FileName)
	return result, nil
}


// Saves the buffer to a file. The format follows the file name suffix. Returns the unchanged input
type OpSave struct {
	OpBase
	FileName       string          `json:"fileName"`
	Quality        int             `json:"quality"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpSaveDefault()}) } // register the operator for JSON decoding

func NewOpSaveDefault() *OpSave { op:=NewOpSave(""); op.Active=true; return op }

func NewOpSave(fileName string) *OpSave {
	return &OpSave{
		OpBase   : OpBase{Type: "save", Active: fileName!=""},
		FileName : fileName,
		Quality  : imageio.DefaultJPEGQuality,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpSave) UnmarshalJSON(data []byte) error {
	type defaults OpSave
	def:=defaults( *NewOpSaveDefault() )
	err:=json.Unmarshal(data, &def)
	if err!=nil { return err }
	*op=OpSave(def)
	return nil
}

func (op *OpSave) Contract() pixels.Mode { return pixels.InPlace }

func (op *OpSave) Apply(b *pixels.Buffer, c *Context) (result *pixels.Buffer, err error) {
	if !op.Active || op.FileName=="" { return b, nil }
	fmt.Fprintf(c.Log, "Writing %s pixel image to %s\n", b.DimensionsToString(), op.FileName)
	if err=imageio.WriteFile(op.FileName, b, op.Quality); err!=nil {
		return nil, fmt.Errorf("writing to file %s: %w", op.FileName, err)
	}
	return b, nil
}


// Applies a sequence of operators to a buffer, skipping inactive ones
type OpSequence struct {
	OpBase
	Steps       []Operator        `json:"-"`      // the actual steps
	StepsRaw    []json.RawMessage `json:"steps"`  // helper for unmarshaling
}

func init() { SetOperatorFactory(func() Operator { return NewOpSequenceDefault()}) } // register the operator for JSON decoding

func NewOpSequenceDefault() *OpSequence { return NewOpSequence() }

func NewOpSequence(steps ...Operator) *OpSequence {
	return &OpSequence{
		OpBase : OpBase{Type: "seq", Active: len(steps)>0},
		Steps  : steps,
	}
}

// Unmarshals a sequence of polymorphic operators from JSON.
// Uses temporary op.StepsRaw inspired by https://alexkappa.medium.com/json-polymorphism-in-go-4cade1e58ed1
func (op *OpSequence) UnmarshalJSON(b []byte) error {
	type alias OpSequence
	op.Active=true
	err := json.Unmarshal(b, (*alias)(op))
	if err != nil { return err }

	for _, raw := range op.StepsRaw {
		var step OpBase
		err = json.Unmarshal(raw, &step)
		if err != nil { return err }

		var i Operator
		if factory:=GetOperatorFactory(step.Type); factory!=nil {
			i=factory()
		} else {
			return fmt.Errorf("%w: unknown operator type '%s' in raw JSON message '%s'", pixels.ErrInvalidConfiguration, step.Type, string(raw))
		}
		err = json.Unmarshal(raw, i)
		if err != nil { return err }
		op.Steps = append(op.Steps, i)
	}
	op.StepsRaw=nil
	return nil
}

// Appends one or more operators to the existing sequence
func (op *OpSequence) Append(steps ...Operator) {
	op.Steps=append(op.Steps, steps...)
}

// Marshals a sequence with polymorphic operators to JSON.
// Uses the actual op.Steps with label "steps", and ignores op.StepsRaw
func (op *OpSequence) MarshalJSON() (bs []byte, err error) {
	buf:=bytes.Buffer{}
	buf.WriteString("{\"type\":")
	inner,err:=json.Marshal(op.Type)
	if err!=nil { return nil, err }
	buf.Write(inner)
	fmt.Fprintf(&buf,", \"active\":%v, \"steps\":", op.Active)
	steps:=op.Steps
	if steps==nil { steps=[]Operator{} }
	inner,err=json.Marshal(steps)
	if err!=nil { return nil, err }
	buf.Write(inner)
	buf.WriteRune('}')
	return buf.Bytes(), nil
}

// In place only if every active step is
func (op *OpSequence) Contract() pixels.Mode {
	for _, step:=range op.Steps {
		if step.IsActive() && step.Contract()!=pixels.InPlace { return pixels.Allocating }
	}
	return pixels.InPlace
}

func (op *OpSequence) Apply(b *pixels.Buffer, c *Context) (result *pixels.Buffer, err error) {
	result=b
	for i, step:=range op.Steps {
		if !step.IsActive() { continue }
		result, err=step.Apply(result, c)
		if err!=nil { return nil, fmt.Errorf("step %d (%s): %w", i, step.GetType(), err) }
	}
	return result, nil
}
