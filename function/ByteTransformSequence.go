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

package function

import (
	"errors"

	kozo "github.com/hbastiat/kozo"
)

const (
	_SEQ_ALL_SKIPPED = 0xFF
)

// ByteTransformSequence chains up to 8 transforms into one function.
// Data ping-pongs between two buffers; a stage that fails is recorded
// in the skip flags and its input passes through unchanged. Bit i
// (from the MSB) flags stage i.
type ByteTransformSequence struct {
	stages    []kozo.ByteTransform
	skipFlags byte
}

// NewByteTransformSequence creates a sequence from the provided
// transforms, applied in order on Forward and in reverse on Inverse
func NewByteTransformSequence(transforms []kozo.ByteTransform) (*ByteTransformSequence, error) {
	if transforms == nil {
		return nil, errors.New("Invalid null transforms parameter")
	}

	if len(transforms) == 0 || len(transforms) > 8 {
		return nil, errors.New("Only 1 to 8 transforms allowed")
	}

	return &ByteTransformSequence{stages: transforms}, nil
}

// Forward runs every stage on src, landing the result in dst.
// Returns the number of bytes read and written. An error is returned
// only when every single stage was skipped.
func (this *ByteTransformSequence) Forward(src, dst []byte) (uint, uint, error) {
	if len(src) == 0 {
		return 0, 0, nil
	}

	blockSize := len(src)
	length := uint(blockSize)
	needed := this.MaxEncodedLen(blockSize)
	this.skipFlags = 0
	in, out := src, dst
	var firstErr error

	for i, t := range this.stages {
		if len(out) < needed {
			out = make([]byte, needed)
		}

		_, written, err := t.Forward(in[0:length], out)

		if err != nil {
			// Stage does not apply to this data (or failed in a
			// recoverable way): pass its input through
			copy(out[0:length], in[0:length])
			written = length
			this.skipFlags |= 1 << (7 - uint(i))

			if firstErr == nil {
				firstErr = err
			}
		}

		length = written
		in, out = out, in
	}

	for i := len(this.stages); i < 8; i++ {
		this.skipFlags |= 1 << (7 - uint(i))
	}

	// An even number of hops leaves the result on the src side
	if len(this.stages)&1 == 0 {
		copy(out, in[0:length])
	}

	if this.skipFlags != _SEQ_ALL_SKIPPED {
		firstErr = nil
	}

	return uint(blockSize), length, firstErr
}

// Inverse runs the non-skipped stages in reverse order, landing the
// result in dst
func (this *ByteTransformSequence) Inverse(src, dst []byte) (uint, uint, error) {
	if len(src) == 0 {
		return 0, 0, nil
	}

	blockSize := len(src)
	length := uint(blockSize)

	if this.skipFlags == _SEQ_ALL_SKIPPED {
		if &src[0] != &dst[0] {
			copy(dst, src)
		}

		return length, length, nil
	}

	in, out := src, dst
	needed := this.MaxEncodedLen(len(dst))

	for i := len(this.stages) - 1; i >= 0; i-- {
		if this.skipFlags&(1<<(7-uint(i))) != 0 {
			continue
		}

		// Intermediate data may be larger than dst
		if cap(out) < needed {
			out = make([]byte, needed)
		}

		var err error
		_, length, err = this.stages[i].Inverse(in[0:length], out[0:cap(out)])

		if err != nil {
			return uint(blockSize), length, err
		}

		in, out = out, in
	}

	// Land the result in dst unless the last stage wrote it there
	if len(dst) == 0 || &in[0] != &dst[0] {
		copy(dst, in[0:length])
	}

	return uint(blockSize), length, nil
}

// MaxEncodedLen returns the output buffer size needed to run every
// stage without reallocation
func (this ByteTransformSequence) MaxEncodedLen(srcLen int) int {
	needed := srcLen

	for _, t := range this.stages {
		f, isFunction := t.(kozo.ByteFunction)

		if !isFunction {
			continue
		}

		if sz := f.MaxEncodedLen(needed); sz > needed {
			needed = sz
		}
	}

	return needed
}

// Len returns the number of stages in the sequence (in [1..8])
func (this *ByteTransformSequence) Len() int {
	return len(this.stages)
}

// SkipFlags returns the flags describing which stage to skip
// (bit set to 1)
func (this *ByteTransformSequence) SkipFlags() byte {
	return this.skipFlags
}

// SetSkipFlags sets the flags describing which stage to skip
func (this *ByteTransformSequence) SetSkipFlags(flags byte) bool {
	this.skipFlags = flags
	return true
}
