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


// A minimal arena over one linear memory, grown in fixed size pages. Callers address
// regions by offset, and must free them with the size they were allocated with.
package arena

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"github.com/pbnjay/memory"
	"github.com/mlnoga/edgelab/internal/pixels"
)

const (
	PageSize            = 64*1024
	DefaultInitialPages = 16
	MaxLimit            = 1<<32-PageSize // largest page-aligned capacity a 32-bit address can span
	alignment           = 8
)

// The arena cannot satisfy a request. Callers may grow the arena and retry
var ErrAllocationFailure=errors.New("allocation failure")

// The region behind a view was freed
var ErrStaleView=errors.New("stale view")

// Offset of a region in the linear memory
type Address uint32

// Reports a change in size of the linear memory. Slices obtained before an epoch change
// no longer alias the arena and must be re-resolved
type Growth struct {
	PreviousSize int
	NewSize      int
	Epoch        uint64
}

// Snapshot of arena usage
type Stats struct {
	SizeBytes      int     `json:"sizeBytes"`
	LimitBytes     int     `json:"limitBytes"`
	AllocatedBytes int     `json:"allocatedBytes"`
	PeakBytes      int     `json:"peakBytes"`
	AllocatedMB    float64 `json:"allocatedMB"`
	LiveRegions    int     `json:"liveRegions"`
	FreeSpans      int     `json:"freeSpans"`
	Epoch          uint64  `json:"epoch"`
}

type span struct {
	offset int
	size   int
}

type region struct {
	size       int     // as requested
	reserved   int     // after alignment
	generation uint64
}

type Arena struct {
	mu         sync.Mutex
	mem        []byte
	limit      int
	free       []span              // sorted by offset, never adjacent
	live       map[Address]region
	allocated  int
	peak       int
	epoch      uint64
	generation uint64
}

// Creates an arena with the given number of initial pages and a capacity limit in bytes
func New(initialPages, limitBytes int) (*Arena, error) {
	if initialPages<0 {
		return nil, fmt.Errorf("%w: %d initial pages", pixels.ErrInvalidConfiguration, initialPages)
	}
	size:=initialPages*PageSize
	if limitBytes<size {
		return nil, fmt.Errorf("%w: limit %d below initial size %d", pixels.ErrInvalidConfiguration, limitBytes, size)
	}
	if uint64(limitBytes)>MaxLimit {
		return nil, fmt.Errorf("%w: limit %d exceeds the 32-bit address range, at most %d", pixels.ErrInvalidConfiguration, limitBytes, uint64(MaxLimit))
	}
	a:=&Arena{
		mem:   make([]byte, size),
		limit: limitBytes,
		live:  make(map[Address]region),
	}
	if size>0 { a.free=[]span{{0, size}} }
	return a, nil
}

// Default capacity limit: a quarter of physical memory, capped to the address range
func DefaultLimit() int {
	limit:=uint64(memory.TotalMemory())/4
	if limit==0 { limit=1<<30 }
	if limit>MaxLimit { limit=MaxLimit }
	return int(limit/PageSize*PageSize)
}

// Creates an arena with default initial size and limit
func NewDefault() *Arena {
	a, err:=New(DefaultInitialPages, DefaultLimit())
	if err!=nil { panic(err) }
	return a
}

func alignUp(n int) int {
	return (n+alignment-1)/alignment*alignment
}

// Number of pages to grow by so that a request of the given size fits into fresh memory
func PagesFor(size int) int {
	return (alignUp(size)+PageSize-1)/PageSize
}

// Reserves size bytes, first fit. Fails with ErrAllocationFailure if no free span is large enough.
// The returned address stays valid until freed. Memory is zeroed
func (a *Arena) Alloc(size int) (Address, error) {
	if size<=0 {
		return 0, fmt.Errorf("%w: allocation of %d bytes", pixels.ErrContractViolation, size)
	}
	reserved:=alignUp(size)

	a.mu.Lock()
	defer a.mu.Unlock()
	for i, s:=range a.free {
		if s.size<reserved { continue }
		addr:=Address(s.offset)
		if s.size==reserved {
			a.free=append(a.free[:i], a.free[i+1:]...)
		} else {
			a.free[i]=span{s.offset+reserved, s.size-reserved}
		}
		clear(a.mem[s.offset:s.offset+reserved])
		a.generation++
		a.live[addr]=region{size: size, reserved: reserved, generation: a.generation}
		a.allocated+=size
		if a.allocated>a.peak { a.peak=a.allocated }
		return addr, nil
	}
	return 0, fmt.Errorf("%w: no free span for %d bytes in %d byte arena", ErrAllocationFailure, size, len(a.mem))
}

// Releases a region. The size must match the allocation. Views into the region become stale
func (a *Arena) Free(addr Address, size int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok:=a.live[addr]
	if !ok {
		return fmt.Errorf("%w: free of unallocated address %d", pixels.ErrContractViolation, addr)
	}
	if r.size!=size {
		return fmt.Errorf("%w: free of address %d with size %d, allocated %d", pixels.ErrContractViolation, addr, size, r.size)
	}
	delete(a.live, addr)
	a.allocated-=r.size
	a.release(span{int(addr), r.reserved})
	return nil
}

// Inserts a span into the sorted free list, merging with adjacent neighbors
func (a *Arena) release(s span) {
	i:=sort.Search(len(a.free), func(i int) bool { return a.free[i].offset>s.offset })
	if i>0 && a.free[i-1].offset+a.free[i-1].size==s.offset {
		a.free[i-1].size+=s.size
		if i<len(a.free) && s.offset+s.size==a.free[i].offset {
			a.free[i-1].size+=a.free[i].size
			a.free=append(a.free[:i], a.free[i+1:]...)
		}
		return
	}
	if i<len(a.free) && s.offset+s.size==a.free[i].offset {
		a.free[i].offset=s.offset
		a.free[i].size+=s.size
		return
	}
	a.free=append(a.free, span{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i]=s
}

// Grows the linear memory by the given number of pages. Live addresses stay valid, but
// slices obtained from Bytes before the call do not alias the new memory
func (a *Arena) Grow(pages int) (Growth, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev:=len(a.mem)
	if pages<0 {
		return Growth{}, fmt.Errorf("%w: grow by %d pages", pixels.ErrContractViolation, pages)
	}
	if pages==0 { return Growth{prev, prev, a.epoch}, nil }
	next:=prev+pages*PageSize
	if next>a.limit || pages>a.limit/PageSize {
		return Growth{prev, prev, a.epoch}, fmt.Errorf("%w: growing to %d bytes exceeds limit %d", ErrAllocationFailure, next, a.limit)
	}
	mem:=make([]byte, next)
	copy(mem, a.mem)
	a.mem=mem
	a.release(span{prev, next-prev})
	a.epoch++
	return Growth{prev, next, a.epoch}, nil
}

// Resolves a live region to a slice of the current memory. Only valid until the next Grow,
// see Growth. Size may be smaller than the allocation
func (a *Arena) Bytes(addr Address, size int) ([]byte, uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err:=a.lookup(addr, size)
	if err!=nil { return nil, 0, err }
	return a.mem[int(addr):int(addr)+size:int(addr)+size], a.epoch, nil
}

func (a *Arena) lookup(addr Address, size int) (region, error) {
	r, ok:=a.live[addr]
	if !ok {
		return r, fmt.Errorf("%w: address %d is not allocated", pixels.ErrContractViolation, addr)
	}
	if size<0 || size>r.size {
		return r, fmt.Errorf("%w: access of %d bytes at address %d, allocated %d", pixels.ErrContractViolation, size, addr, r.size)
	}
	return r, nil
}

// Calls fn with the bytes of a live region while holding the arena lock, so the region
// cannot be freed or moved by growth during the call
func (a *Arena) With(addr Address, size int, fn func([]byte) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err:=a.lookup(addr, size); err!=nil { return err }
	return fn(a.mem[int(addr):int(addr)+size:int(addr)+size])
}

// Live bytes in MB, as requested by callers
func (a *Arena) AllocatedMB() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return float64(a.allocated)/(1024*1024)
}

// Highest number of live bytes in MB seen so far
func (a *Arena) PeakMB() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return float64(a.peak)/(1024*1024)
}

// Current size of the linear memory in bytes
func (a *Arena) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.mem)
}

func (a *Arena) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		SizeBytes:      len(a.mem),
		LimitBytes:     a.limit,
		AllocatedBytes: a.allocated,
		PeakBytes:      a.peak,
		AllocatedMB:    float64(a.allocated)/(1024*1024),
		LiveRegions:    len(a.live),
		FreeSpans:      len(a.free),
		Epoch:          a.epoch,
	}
}


// A handle to a live region. Views survive growth, and fail with ErrStaleView once the region is freed
type View struct {
	arena      *Arena
	addr       Address
	size       int
	generation uint64
}

// Creates a view of the first size bytes of a live region
func (a *Arena) View(addr Address, size int) (View, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, err:=a.lookup(addr, size)
	if err!=nil { return View{}, err }
	return View{a, addr, size, r.generation}, nil
}

func (v View) Address() Address { return v.addr }
func (v View) Size() int        { return v.size }

// Checks the region is still the one the view was created for. Caller holds the lock
func (v View) check() error {
	if v.arena==nil { return fmt.Errorf("%w: zero view", ErrStaleView) }
	r, ok:=v.arena.live[v.addr]
	if !ok || r.generation!=v.generation {
		return fmt.Errorf("%w: region at address %d was freed", ErrStaleView, v.addr)
	}
	return nil
}

// Resolves the view against the current memory. The slice is valid until the next growth
func (v View) Bytes() ([]byte, error) {
	if v.arena==nil { return nil, fmt.Errorf("%w: zero view", ErrStaleView) }
	v.arena.mu.Lock()
	defer v.arena.mu.Unlock()
	if err:=v.check(); err!=nil { return nil, err }
	return v.arena.mem[int(v.addr):int(v.addr)+v.size:int(v.addr)+v.size], nil
}

// Calls fn with the bytes of the view while holding the arena lock
func (v View) With(fn func([]byte) error) error {
	if v.arena==nil { return fmt.Errorf("%w: zero view", ErrStaleView) }
	v.arena.mu.Lock()
	defer v.arena.mu.Unlock()
	if err:=v.check(); err!=nil { return err }
	return fn(v.arena.mem[int(v.addr):int(v.addr)+v.size:int(v.addr)+v.size])
}
