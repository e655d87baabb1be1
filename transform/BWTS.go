/*
Copyright 2017-2023 the kozo authors
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
you may obtain a copy of the License at

                http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package transform

import (
	"errors"
	"fmt"
)

const (
	_BWTS_MAX_BLOCK_SIZE = 1024 * 1024 * 1024 // 1 GB
)

// BWTS Bijective version of the Burrows-Wheeler Transform
// The input is factored into Lyndon words and each word is rotated
// independently, so no primary index needs to be stored (hence the
// bijectivity). BWTS is about 10% slower than BWT.
// Forward transform based on the code at https://code.google.com/p/mk-bwts/
// by Neal Burns
type BWTS struct {
	sa     []int32
	ranks  []int32
	saAlgo *SAIS
}

// NewBWTS creates a new instance of BWTS
func NewBWTS() (*BWTS, error) {
	return &BWTS{sa: make([]int32, 0), ranks: make([]int32, 0)}, nil
}

// NewBWTSWithCtx creates a new instance of BWTS using a
// configuration map as parameter.
func NewBWTSWithCtx(ctx *map[string]interface{}) (*BWTS, error) {
	return &BWTS{sa: make([]int32, 0), ranks: make([]int32, 0)}, nil
}

func checkBWTSBlock(src, dst []byte) error {
	if &src[0] == &dst[0] {
		return errors.New("Input and output buffers cannot be equal")
	}

	if len(src) > MaxBWTSBlockSize() {
		// Not a recoverable error: instead of silently fail the transform,
		// issue a fatal error.
		errMsg := fmt.Sprintf("The max BWTS block size is %v, got %v", MaxBWTSBlockSize(), len(src))
		panic(errors.New(errMsg))
	}

	if len(src) > len(dst) {
		return fmt.Errorf("Block size is %v, output buffer length is %v", len(src), len(dst))
	}

	return nil
}

// Forward applies the function to the src and writes the result
// to the destination. Returns number of bytes read, number of bytes
// written and possibly an error.
func (this *BWTS) Forward(src, dst []byte) (uint, uint, error) {
	if len(src) == 0 {
		return 0, 0, nil
	}

	if err := checkBWTSBlock(src, dst); err != nil {
		return 0, 0, err
	}

	count := len(src)
	count32 := int32(count)

	if count < 2 {
		if count == 1 {
			dst[0] = src[0]
		}

		return uint(count), uint(count), nil
	}

	if this.saAlgo == nil {
		var err error

		if this.saAlgo, err = NewSAIS(); err != nil {
			return 0, 0, err
		}
	}

	// Lazy dynamic memory allocations
	if len(this.sa) < count {
		this.sa = make([]int32, count)
	}

	if len(this.ranks) < count {
		this.ranks = make([]int32, count)
	}

	sa := this.sa[0:count]
	ranks := this.ranks[0:count]

	this.saAlgo.ComputeSuffixArray(src[0:count], sa)

	for i := range ranks {
		ranks[sa[i]] = int32(i)
	}

	// Walk the Lyndon word heads (strictly decreasing ranks) and fix
	// the suffix array so each word sorts as if rotated onto itself
	headRank := ranks[0]
	headIdx := int32(0)

	for i := int32(1); i < count32 && headRank > 0; i++ {
		if ranks[i] >= headRank {
			continue
		}

		refRank := this.sinkWordHead(sa, ranks, src, count32, headIdx, i-headIdx, headRank)
		this.resortWordSuffixes(sa, ranks, src, count32, headIdx, i-1, refRank)
		headRank = ranks[i]
		headIdx = i
	}

	// Emit the last column: for each rotation, the byte preceding the
	// suffix start within its word
	headRank = count32

	for i := 0; i < count; i++ {
		if ranks[i] >= headRank {
			dst[ranks[i]] = src[i-1]
			continue
		}

		if headRank < count32 {
			dst[headRank] = src[i-1]
		}

		headRank = ranks[i]
	}

	dst[0] = src[count-1]
	return uint(count), uint(count), nil
}

// sinkWordHead lowers the suffix starting the Lyndon word at 'start'
// (length 'size') to the rank it deserves once the word is treated as
// a rotation, shifting the displaced suffixes up. Returns the head's
// final rank.
func (this *BWTS) sinkWordHead(sa, ranks []int32, data []byte, count, start, size, rank int32) int32 {
	end := start + size

	for rank+1 < count {
		nextStart0 := sa[rank+1]

		if nextStart0 <= end {
			break
		}

		nextStart := nextStart0
		k := int32(0)

		for k < size && nextStart < count && data[start+k] == data[nextStart] {
			k++
			nextStart++
		}

		if k == size && rank < ranks[nextStart] {
			break
		}

		if k < size && nextStart < count && data[start+k] < data[nextStart] {
			break
		}

		sa[rank] = nextStart0
		ranks[nextStart0] = rank
		rank++
	}

	sa[rank] = start
	ranks[start] = rank
	return rank
}

// resortWordSuffixes walks the word's inner suffixes from 'last' down
// to (but excluding) 'start', sinking each one below the suffixes it
// no longer precedes now that the word wraps around
func (this *BWTS) resortWordSuffixes(sa, ranks []int32, data []byte, count, start, last, refRank int32) {
	for j := last; j > start; j-- {
		testRank := ranks[j]
		startRank := testRank

		for testRank < count-1 {
			nextStart := sa[testRank+1]

			if j > nextStart || data[j] != data[nextStart] || refRank < ranks[nextStart+1] {
				break
			}

			sa[testRank] = nextStart
			ranks[nextStart] = testRank
			testRank++
		}

		sa[testRank] = j
		ranks[j] = testRank
		refRank = testRank

		if startRank == testRank {
			break
		}
	}
}

// Inverse applies the reverse function to the src and writes the result
// to the destination. Returns number of bytes read, number of bytes
// written and possibly an error.
func (this *BWTS) Inverse(src, dst []byte) (uint, uint, error) {
	if len(src) == 0 {
		return 0, 0, nil
	}

	if err := checkBWTSBlock(src, dst); err != nil {
		return 0, 0, err
	}

	count := len(src)

	if count < 2 {
		if count == 1 {
			dst[0] = src[0]
		}

		return uint(count), uint(count), nil
	}

	// Lazy dynamic memory allocation
	if len(this.sa) < count {
		this.sa = make([]int32, count)
	}

	// Standard LF mapping, built from the cumulative symbol counts
	links := this.sa

	var freqs [256]int32

	for i := 0; i < count; i++ {
		freqs[src[i]]++
	}

	sum := int32(0)

	for i := range &freqs {
		sum += freqs[i]
		freqs[i] = sum - freqs[i]
	}

	for i := 0; i < count; i++ {
		links[i] = freqs[src[i]]
		freqs[src[i]]++
	}

	// Each Lyndon word is one cycle of the LF permutation: follow
	// every unvisited cycle, writing its bytes from the back
	for i, j := 0, count-1; j >= 0; i++ {
		if links[i] < 0 {
			continue
		}

		p := int32(i)

		for {
			dst[j] = src[p]
			j--
			next := links[p]
			links[p] = -1
			p = next

			if links[p] < 0 {
				break
			}
		}
	}

	return uint(count), uint(count), nil
}

// MaxBWTSBlockSize returns the maximum size of a block to transform
func MaxBWTSBlockSize() int {
	return _BWTS_MAX_BLOCK_SIZE
}

// MaxEncodedLen returns the max size required for the encoding output buffer
func (this BWTS) MaxEncodedLen(srcLen int) int {
	return srcLen
}
