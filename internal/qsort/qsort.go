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


package qsort

import (
	"github.com/valyala/fastrand"
)


// Sort an array of int32 in ascending order.
func QSortInt32(a []int32) {
	for len(a)>1 {
		index:=qPartitionInt32(a, 0, len(a)-1)
		// recurse into the smaller half, loop on the larger one
		if index+1 < len(a)-index-1 {
			QSortInt32(a[:index+1])
			a=a[index+1:]
		} else {
			QSortInt32(a[index+1:])
			a=a[:index+1]
		}
	}
}


// Hoare partition of a[left..right] around a randomly chosen pivot in [left, right-1].
// Keeping the pivot off the last position guarantees both halves are non-empty.
// Returns index r such that a[left..r] <= pivot <= a[r+1..right]
func qPartitionInt32(a []int32, left, right int) int {
	pivot:=a[left+int(fastrand.Uint32n(uint32(right-left)))]
	l, r :=left-1, right+1
	for {
		for {
			l++
			if a[l]>=pivot { break }
		}
		for {
			r--
			if a[r]<=pivot { break }
		}
		if l >= r { return r }
		a[l], a[r] = a[r], a[l]
	}
}


// Select kth lowest element from an array of int32, with k counted from 1. Partially reorders the array.
// Returns the same element a full ascending sort would place at index k-1
func QSelectInt32(a []int32, k int) int32 {
	left, right:=0, len(a)-1
	for left<right {
		index :=qPartitionInt32(a, left, right)
		offset:=index-left+1
		if k<=offset {
			right=index
		} else {
			left=index+1
			k=k-offset
		}
	}
	return a[left]
}


// Returns the element at the given percentile in [0,1] of the ascending order of a: index floor(len*p),
// clamped to the last valid index. Partially reorders the array. Returns 0 for empty arrays
func PercentileInt32(a []int32, p float64) int32 {
	if len(a)==0 { return 0 }
	index:=int(float64(len(a))*p)
	if index>len(a)-1 { index=len(a)-1 }
	if index<0 { index=0 }
	return QSelectInt32(a, index+1)
}

