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


package internal

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"github.com/klauspost/cpuid"
)

// Bands smaller than this are not worth a goroutine
const minRowsPerBand=16

var maxThreads int64=int64(DefaultThreads())

// Number of threads to use by default: logical cores as reported by the CPU, capped by GOMAXPROCS
func DefaultThreads() int {
	n:=cpuid.CPU.LogicalCores
	if n<=0 { n=runtime.NumCPU() }
	if g:=runtime.GOMAXPROCS(0); n>g { n=g }
	if n<1 { n=1 }
	return n
}

// Limits row parallelism to the given number of threads. Values <1 restore the default
func SetMaxThreads(n int) {
	if n<1 { n=DefaultThreads() }
	atomic.StoreInt64(&maxThreads, int64(n))
}

func MaxThreads() int {
	return int(atomic.LoadInt64(&maxThreads))
}

// A row function processes rows [lower, upper). Invocations must write disjoint output locations
type RowFunction func(lower, upper int)

// Applies the given row function to all rows in [0, rows). Splits into 8*threads bands and limits
// parallelism to the thread count. Returns once all bands are done
func ParallelRows(rows int, rf RowFunction) {
	threads:=MaxThreads()
	if threads<=1 || rows<2*minRowsPerBand {
		rf(0, rows)
		return
	}

	numBatches:=8*threads
	batchSize :=(rows+numBatches-1)/numBatches
	if batchSize<minRowsPerBand { batchSize=minRowsPerBand }
	sem       :=make(chan bool, threads)
	for lower:=0; lower<rows; lower+=batchSize {
		upper:=lower+batchSize
		if upper>rows { upper=rows }

		sem <- true
		go func(lower, upper int) {
			rf(lower, upper)
			<-sem
		}(lower, upper)
	}

	for i:=0; i<cap(sem); i++ {  // wait for goroutines to finish
		sem <- true
	}
}

// One line description of the CPU, for version and log output
func CPUBanner() string {
	avx2:=""
	if cpuid.CPU.AVX2() { avx2=", AVX2" }
	return fmt.Sprintf("%s (%d physical cores, %d logical%s), using %d threads",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, avx2, MaxThreads())
}
