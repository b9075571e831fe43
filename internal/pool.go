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


package internal

import (
	"runtime"
	"sync"
)

// Pools of constant sized scratch arrays, to reduce allocation overhead when the same image
// size is filtered repeatedly. Arrays retrieved from a pool are NOT zeroed.

type sizedPools[T any] struct {
	sync.RWMutex
	m map[int]*sync.Pool
}

func newSizedPools[T any]() *sizedPools[T] {
	return &sizedPools[T]{m: make(map[int]*sync.Pool)}
}

// Returns the pool for arrays of the given size, creating it on first use
func (p *sizedPools[T]) get(size int) *sync.Pool {
	p.RLock()
	pool:=p.m[size]
	p.RUnlock()
	if pool!=nil { return pool }

	p.Lock()
	defer p.Unlock()
	if pool=p.m[size]; pool==nil {
		pool=&sync.Pool{
			New: func() interface{} {
				return make([]T, size)
			},
		}
		p.m[size]=pool
	}
	return pool
}

var poolInt32   =newSizedPools[int32]()
var poolFloat32 =newSizedPools[float32]()

// Clears all memory pools and triggers garbage collection
func ClearPools() {
	poolInt32  =newSizedPools[int32]()
	poolFloat32=newSizedPools[float32]()
	runtime.GC()
}

// Retrieves an array of given size and type from pool
func GetArrayOfInt32FromPool(size int) []int32 {
	return poolInt32.get(size).Get().([]int32)
}

// Returns an array of given size and type to the pool
func PutArrayOfInt32IntoPool(arr []int32) {
	poolInt32.get(cap(arr)).Put(arr[:cap(arr)])
}

// Retrieves an array of given size and type from pool
func GetArrayOfFloat32FromPool(size int) []float32 {
	return poolFloat32.get(size).Get().([]float32)
}

// Returns an array of given size and type to the pool
func PutArrayOfFloat32IntoPool(arr []float32) {
	poolFloat32.get(cap(arr)).Put(arr[:cap(arr)])
}
