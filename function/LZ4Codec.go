/*
Copyright 2017-2023 the kozo authors
Licensed under the Apache License, Version 2.0 (the "License")
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
	"encoding/binary"
	"errors"
	"fmt"

	kozo "github.com/hbastiat/kozo"
)

// Go implementation of a LZ4 codec.
// LZ4 is a very fast lossless compression algorithm created by Yann Collet.
// See original code here: https://github.com/lz4/lz4
// More details on the algorithm are available here:
// http://fastcompression.blogspot.com/2011/05/lz4-explained.html

const (
	_LZ4_HASH_SEED       = 0x9E3779B1
	_LZ4_HASH_LOG        = 12
	_LZ4_HASH_LOG_64K    = 13
	_LZ4_MAX_DISTANCE    = (1 << 16) - 1
	_LZ4_SKIP_STRENGTH   = 6
	_LZ4_LAST_LITERALS   = 5
	_LZ4_MIN_MATCH       = 4
	_LZ4_MF_LIMIT        = 12
	_LZ4_64K_LIMIT       = _LZ4_MAX_DISTANCE + _LZ4_MF_LIMIT
	_LZ4_ML_BITS         = 4
	_LZ4_ML_MASK         = (1 << _LZ4_ML_BITS) - 1
	_LZ4_RUN_BITS        = 8 - _LZ4_ML_BITS
	_LZ4_RUN_MASK        = (1 << _LZ4_RUN_BITS) - 1
	_LZ4_COPY_LENGTH     = 8
	_LZ4_MIN_LENGTH      = 14
	_LZ4_MAX_LENGTH      = (32 * 1024 * 1024) - 4 - _LZ4_MIN_MATCH
	_LZ4_ACCELERATION    = 1
	_LZ4_SKIP_TRIGGER    = 6
	_LZ4_SEARCH_MATCH_NB = _LZ4_ACCELERATION << _LZ4_SKIP_TRIGGER
)

// LZ4Codec a byte function implementing the LZ4 block format
type LZ4Codec struct {
	buffer []int
}

// NewLZ4Codec creates a new instance of LZ4Codec
func NewLZ4Codec() (*LZ4Codec, error) {
	this := new(LZ4Codec)
	this.buffer = make([]int, 1<<_LZ4_HASH_LOG_64K)
	return this, nil
}

// NewLZ4CodecWithCtx creates a new instance of LZ4Codec using a
// configuration map as parameter.
func NewLZ4CodecWithCtx(ctx *map[string]interface{}) (*LZ4Codec, error) {
	this := new(LZ4Codec)
	this.buffer = make([]int, 1<<_LZ4_HASH_LOG_64K)
	return this, nil
}

func writeLength(buf []byte, length int) int {
	idx := 0

	for length >= 0x1FE {
		buf[idx] = 0xFF
		buf[idx+1] = 0xFF
		idx += 2
		length -= 0x1FE
	}

	if length >= 0xFF {
		buf[idx] = 0xFF
		idx++
		length -= 0xFF
	}

	buf[idx] = byte(length)
	return idx + 1
}

func writeLastLiterals(src, dst []byte) int {
	dstIdx := 1
	runLength := len(src)

	if runLength >= _LZ4_RUN_MASK {
		dst[0] = byte(_LZ4_RUN_MASK << _LZ4_ML_BITS)
		dstIdx += writeLength(dst[1:], runLength-_LZ4_RUN_MASK)
	} else {
		dst[0] = byte(runLength << _LZ4_ML_BITS)
	}

	copy(dst[dstIdx:], src[0:runLength])
	return dstIdx + runLength
}

// Forward applies the function to the src and writes the result
// to the destination. Returns number of bytes read, number of bytes
// written and possibly an error.
// Generates same byte output as LZ4_compress_generic in LZ4 r131 (7/15)
// for a 32 bit architecture.
func (this *LZ4Codec) Forward(src, dst []byte) (uint, uint, error) {
	if len(src) == 0 {
		return 0, 0, nil
	}

	if &src[0] == &dst[0] {
		return 0, 0, errors.New("Input and output buffers cannot be equal")
	}

	count := len(src)

	if n := this.MaxEncodedLen(count); len(dst) < n {
		return 0, 0, fmt.Errorf("Output buffer is too small - size: %d, required %d", len(dst), n)
	}

	var hashLog uint

	if count < _LZ4_64K_LIMIT {
		hashLog = _LZ4_HASH_LOG_64K
	} else {
		hashLog = _LZ4_HASH_LOG
	}

	hashShift := 32 - hashLog
	srcEnd := count
	matchLimit := srcEnd - _LZ4_LAST_LITERALS
	mfLimit := srcEnd - _LZ4_MF_LIMIT
	srcIdx := 0
	dstIdx := 0
	anchor := 0

	if count > _LZ4_MIN_LENGTH {
		table := this.buffer[0 : 1<<hashLog]

		for i := range table {
			table[i] = 0
		}

		// First byte
		h32 := (binary.LittleEndian.Uint32(src[srcIdx:]) * _LZ4_HASH_SEED) >> hashShift
		table[h32] = srcIdx
		srcIdx++
		h32 = (binary.LittleEndian.Uint32(src[srcIdx:]) * _LZ4_HASH_SEED) >> hashShift

		for {
			fwdIdx := srcIdx
			step := 1
			searchMatchNb := _LZ4_SEARCH_MATCH_NB
			var match int

			// Find a match
			for {
				srcIdx = fwdIdx
				fwdIdx += step

				if fwdIdx > mfLimit {
					// Encode last literals
					dstIdx += writeLastLiterals(src[anchor:srcEnd], dst[dstIdx:])
					return uint(srcEnd), uint(dstIdx), error(nil)
				}

				step = searchMatchNb >> _LZ4_SKIP_STRENGTH
				searchMatchNb++
				match = table[h32]
				table[h32] = srcIdx
				h32 = (binary.LittleEndian.Uint32(src[fwdIdx:]) * _LZ4_HASH_SEED) >> hashShift

				if kozo.DifferentInts(src[srcIdx:], src[match:]) == false && match > srcIdx-_LZ4_MAX_DISTANCE {
					break
				}
			}

			// Catch up
			for match > 0 && srcIdx > anchor && src[match-1] == src[srcIdx-1] {
				match--
				srcIdx--
			}

			// Encode literal length
			litLength := srcIdx - anchor
			token := dstIdx
			dstIdx++

			if litLength >= _LZ4_RUN_MASK {
				dst[token] = byte(_LZ4_RUN_MASK << _LZ4_ML_BITS)
				dstIdx += writeLength(dst[dstIdx:], litLength-_LZ4_RUN_MASK)
			} else {
				dst[token] = byte(litLength << _LZ4_ML_BITS)
			}

			// Copy literals
			copy(dst[dstIdx:], src[anchor:anchor+litLength])
			dstIdx += litLength

			// Next match
			for {
				// Encode offset
				dst[dstIdx] = byte(srcIdx - match)
				dst[dstIdx+1] = byte((srcIdx - match) >> 8)
				dstIdx += 2

				// Encode match length
				srcIdx += _LZ4_MIN_MATCH
				match += _LZ4_MIN_MATCH
				anchor = srcIdx

				for srcIdx < matchLimit && src[srcIdx] == src[match] {
					srcIdx++
					match++
				}

				matchLength := srcIdx - anchor

				// Encode match length
				if matchLength >= _LZ4_ML_MASK {
					dst[token] += byte(_LZ4_ML_MASK)
					dstIdx += writeLength(dst[dstIdx:], matchLength-_LZ4_ML_MASK)
				} else {
					dst[token] += byte(matchLength)
				}

				anchor = srcIdx

				if srcIdx > mfLimit {
					dstIdx += writeLastLiterals(src[anchor:srcEnd], dst[dstIdx:])
					return uint(srcEnd), uint(dstIdx), error(nil)
				}

				// Fill table
				h32 = (binary.LittleEndian.Uint32(src[srcIdx-2:]) * _LZ4_HASH_SEED) >> hashShift
				table[h32] = srcIdx - 2

				// Test next position
				h32 = (binary.LittleEndian.Uint32(src[srcIdx:]) * _LZ4_HASH_SEED) >> hashShift
				match = table[h32]
				table[h32] = srcIdx

				if kozo.DifferentInts(src[srcIdx:], src[match:]) || match <= srcIdx-_LZ4_MAX_DISTANCE {
					break
				}

				token = dstIdx
				dstIdx++
				dst[token] = 0
			}

			// Prepare next loop
			srcIdx++
			h32 = (binary.LittleEndian.Uint32(src[srcIdx:]) * _LZ4_HASH_SEED) >> hashShift
		}
	}

	// Encode last literals
	dstIdx += writeLastLiterals(src[anchor:srcEnd], dst[dstIdx:])
	return uint(srcEnd), uint(dstIdx), error(nil)
}

// Inverse applies the reverse function to the src and writes the result
// to the destination. Returns number of bytes read, number of bytes
// written and possibly an error.
// Reads same byte input as LZ4_decompress_generic in LZ4 r131 (7/15)
// for a 32 bit architecture.
func (this *LZ4Codec) Inverse(src, dst []byte) (uint, uint, error) {
	if len(src) == 0 {
		return 0, 0, nil
	}

	if &src[0] == &dst[0] {
		return 0, 0, errors.New("Input and output buffers cannot be equal")
	}

	count := len(src)
	srcEnd := count - _LZ4_COPY_LENGTH
	dstEnd := len(dst) - _LZ4_COPY_LENGTH
	srcIdx := 0
	dstIdx := 0

	for {
		// Get literal length
		token := int(src[srcIdx])
		srcIdx++
		length := token >> _LZ4_ML_BITS

		if length == _LZ4_RUN_MASK {
			for src[srcIdx] == byte(0xFF) && srcIdx < count {
				srcIdx++
				length += 0xFF
			}

			length += int(src[srcIdx])
			srcIdx++

			if length > _LZ4_MAX_LENGTH {
				return 0, 0, fmt.Errorf("Invalid length decoded: %d", length)
			}
		}

		// Copy literals
		if dstIdx+length > dstEnd || srcIdx+length > srcEnd {
			copy(dst[dstIdx:], src[srcIdx:srcIdx+length])
			srcIdx += length
			dstIdx += length
			break
		}

		for i := 0; i < length; i++ {
			dst[dstIdx+i] = src[srcIdx+i]
		}

		srcIdx += length
		dstIdx += length

		if dstIdx > dstEnd || srcIdx > srcEnd {
			break
		}

		// Get offset
		delta := int(src[srcIdx]) | (int(src[srcIdx+1]) << 8)
		srcIdx += 2
		match := dstIdx - delta

		if match < 0 {
			break
		}

		length = token & _LZ4_ML_MASK

		// Get match length
		if length == _LZ4_ML_MASK {
			for src[srcIdx] == 0xFF && srcIdx < count {
				srcIdx++
				length += 0xFF
			}

			if srcIdx < count {
				length += int(src[srcIdx])
				srcIdx++
			}

			if length > _LZ4_MAX_LENGTH || srcIdx == count {
				return 0, 0, fmt.Errorf("Invalid length decoded: %d", length)
			}
		}

		length += _LZ4_MIN_MATCH
		cpy := dstIdx + length

		if cpy > dstEnd {
			// Do not use copy on (potentially) overlapping slices
			for i := 0; i < length; i++ {
				dst[dstIdx+i] = dst[match+i]
			}
		} else {
			if dstIdx >= match+8 {
				for {
					binary.LittleEndian.PutUint64(dst[dstIdx:], binary.LittleEndian.Uint64(dst[match:]))
					match += 8
					dstIdx += 8

					if dstIdx >= cpy {
						break
					}
				}
			} else {
				// Unroll loop
				for {
					s := dst[match : match+8]
					d := dst[dstIdx : dstIdx+8]
					d[0] = s[0]
					d[1] = s[1]
					d[2] = s[2]
					d[3] = s[3]
					d[4] = s[4]
					d[5] = s[5]
					d[6] = s[6]
					d[7] = s[7]
					match += 8
					dstIdx += 8

					if dstIdx >= cpy {
						break
					}
				}
			}
		}

		// Correction
		dstIdx = cpy
	}

	return uint(srcIdx), uint(dstIdx), nil
}

// MaxEncodedLen returns the max size required for the encoding output buffer
func (this LZ4Codec) MaxEncodedLen(srcLen int) int {
	return srcLen + (srcLen / 255) + 16
}
