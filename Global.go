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

package kozo

import (
	"errors"
	"math"
	"math/bits"
)

// LOG2_4096 holds round(4096*log2(x)) for x in [0..256] (entry 0 is
// a filler since log2(0) is undefined)
var LOG2_4096 [257]uint32

// Samples of 65536/(1+exp(-alpha*x)) for alpha = 0.54, one per 128
// units of the stretched domain. Seed data for SQUASH.
var _INV_EXP = [33]int{
	0, 8, 22, 47, 88, 160, 283, 492,
	848, 1451, 2459, 4117, 6766, 10819, 16608, 24127,
	32768, 41409, 48928, 54717, 58770, 61419, 63077, 64085,
	64688, 65044, 65253, 65376, 65448, 65489, 65514, 65528,
	65536,
}

// SQUASH contains p = 1/(1 + exp(-d)), d scaled by 8 bits, p scaled by 12 bits
var SQUASH [4096]int

// STRETCH is the inverse of squash. d = ln(p/(1-p)), d scaled by 8 bits, p by 12 bits.
// d has range -2047 to 2047 representing -8 to 8. p in [0..4095].
var STRETCH [4096]int

func init() {
	for x := 1; x <= 256; x++ {
		LOG2_4096[x] = uint32(math.Round(4096 * math.Log2(float64(x))))
	}

	// SQUASH interpolates linearly between the _INV_EXP samples
	for d := -2047; d <= 2047; d++ {
		w := d & 127
		idx := (d >> 7) + 16
		SQUASH[d+2047] = (_INV_EXP[idx]*(128-w) + _INV_EXP[idx+1]*w) >> 11
	}

	// STRETCH maps each probability to the smallest d squashing at or
	// above it
	p := 0

	for d := -2047; d <= 2047; d++ {
		for top := Squash(d); p <= top; p++ {
			STRETCH[p] = d
		}
	}

	STRETCH[4095] = 2047
}

// Squash returns p = 1/(1 + exp(-d)), d scaled by 8 bits, p scaled by 12 bits
func Squash(d int) int {
	if d >= 2048 {
		return 4095
	}

	if d <= -2048 {
		return 0
	}

	return SQUASH[d+2047]
}

// Log2 returns a fast, integer value for log2(x), rounded down
func Log2(x uint32) (uint32, error) {
	if x == 0 {
		return 0, errors.New("Cannot calculate log of a negative or null value")
	}

	return Log2NoCheck(x), nil
}

// Log2NoCheck does the same as Log2() minus a null check on input value
func Log2NoCheck(x uint32) uint32 {
	return uint32(bits.Len32(x) - 1)
}

// Log2_1024 returns 1024 * log2(x). Max error is around 0.1%
func Log2_1024(x uint32) (uint32, error) {
	if x == 0 {
		return 0, errors.New("Cannot calculate log of a negative or null value")
	}

	if x < 256 {
		return (LOG2_4096[x] + 2) >> 2, nil
	}

	log := Log2NoCheck(x)

	if x&(x-1) == 0 {
		return log << 10, nil
	}

	// Scale x down into the table range and add the contribution of
	// the dropped low bits
	return ((log - 7) * 1024) + ((LOG2_4096[x>>(log-7)] + 2) >> 2), nil
}

// ComputeFirstOrderEntropy1024 computes the order 0 entropy of the block
// and scales the result by 1024 (result in the [0..1024] range, where
// 1024 stands for 8 bits per byte)
// Incoming histo array size must be at least 256
func ComputeFirstOrderEntropy1024(blockLen int, histo []int) int {
	if blockLen == 0 {
		return 0
	}

	sum := uint64(0)
	logTotal, _ := Log2_1024(uint32(blockLen))

	for _, h := range histo[0:256] {
		if h == 0 {
			continue
		}

		logFreq, _ := Log2_1024(uint32(h))
		sum += ((uint64(h) * uint64(logTotal-logFreq)) >> 3)
	}

	return int(sum / uint64(blockLen))
}

// ComputeHistogram computes the order 0 or order 1 histogram for the input block
// and returns it in the 'freqs' slice.
// If withTotal is true, the last spot in each frequencies order 0 array is for the total
// (each order 0 frequency slice must be of length 257 in this case).
func ComputeHistogram(block []byte, freqs []int, isOrder0, withTotal bool) {
	for i := range freqs {
		freqs[i] = 0
	}

	if isOrder0 {
		if withTotal {
			freqs[256] = len(block)
		}

		// Four independent counter banks break the store-to-load
		// dependency on repeated symbols
		var bank0, bank1, bank2, bank3 [256]int
		end4 := len(block) & -4

		for i := 0; i < end4; i += 4 {
			bank0[block[i]]++
			bank1[block[i+1]]++
			bank2[block[i+2]]++
			bank3[block[i+3]]++
		}

		for _, s := range block[end4:] {
			freqs[s]++
		}

		for i := 0; i < 256; i++ {
			freqs[i] += (bank0[i] + bank1[i] + bank2[i] + bank3[i])
		}

		return
	}

	// Order 1: one frequency row per previous symbol
	prvRow := 0

	if withTotal {
		for _, cur := range block {
			freqs[prvRow+int(cur)]++
			freqs[prvRow+256]++
			prvRow = 257 * int(cur)
		}

		return
	}

	for _, cur := range block {
		freqs[prvRow+int(cur)]++
		prvRow = int(cur) << 8
	}
}

// ComputeJobsPerTask computes the number of jobs associated with each task
// given a number of jobs available and a number of tasks to perform.
// The provided 'jobsPerTask' slice is returned as result.
func ComputeJobsPerTask(jobsPerTask []uint, jobs, tasks uint) []uint {
	if tasks == 0 {
		panic("Invalid number of tasks provided: 0")
	}

	if jobs == 0 {
		panic("Invalid number of jobs provided: 0")
	}

	share := uint(1)
	extra := uint(0)

	if jobs > tasks {
		share = jobs / tasks
		extra = jobs - share*tasks
	}

	for i := range jobsPerTask {
		jobsPerTask[i] = share
	}

	// Hand out the remainder round-robin
	for i := uint(0); extra != 0; extra-- {
		jobsPerTask[i]++
		i++

		if i == tasks {
			i = 0
		}
	}

	return jobsPerTask
}
