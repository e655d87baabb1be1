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

package entropy

import (
	"errors"
	"math/bits"

	kozo "github.com/hbastiat/kozo"
)

// Precomputed codewords, one per byte value, for the unsigned and
// signed flavors. Each entry packs the bit count in the high bits
// (above bit 9) and the codeword itself in the low 9 bits.
var _EXPG_CODEWORDS [2][256]uint

func init() {
	for v := 0; v < 256; v++ {
		// Unsigned: order 0 exp-Golomb of v
		m := uint(v) + 1
		w := uint(bits.Len(m)) - 1
		_EXPG_CODEWORDS[0][v] = ((2*w + 1) << 9) | m

		// Signed: exp-Golomb of |int8(v)| followed by a sign bit
		mag := uint(v)
		sign := uint(0)

		if v > 128 {
			mag = 256 - uint(v)
			sign = 1
		} else if v == 128 {
			sign = 1
		}

		m = mag + 1
		w = uint(bits.Len(m)) - 1
		_EXPG_CODEWORDS[1][v] = ((2*w + 2) << 9) | (m << 1) | sign
	}
}

// ExpGolombEncoder Exponential Golomb Entropy Encoder
type ExpGolombEncoder struct {
	signed    bool
	codewords []uint
	bitstream kozo.OutputBitStream
}

// NewExpGolombEncoder creates a new instance of ExpGolombEncoder.
// When sgn is true, byte values are interpreted as int8: a sign bit
// follows the magnitude, which helps distributions centered on 0
// (-1 codes far shorter than 255 would).
func NewExpGolombEncoder(bs kozo.OutputBitStream, sgn bool) (*ExpGolombEncoder, error) {
	if bs == nil {
		return nil, errors.New("ExpGolomb codec: Invalid null bitstream parameter")
	}

	this := &ExpGolombEncoder{bitstream: bs, signed: sgn}

	if sgn {
		this.codewords = _EXPG_CODEWORDS[1][:]
	} else {
		this.codewords = _EXPG_CODEWORDS[0][:]
	}

	return this, nil
}

// Signed returns true if this encoder is sign aware
func (this *ExpGolombEncoder) Signed() bool {
	return this.signed
}

// Dispose this implementation does nothing
func (this *ExpGolombEncoder) Dispose() {
}

// EncodeByte encodes the given value into the bitstream
func (this *ExpGolombEncoder) EncodeByte(val byte) {
	if val == 0 {
		this.bitstream.WriteBit(1)
		return
	}

	cw := this.codewords[val]
	this.bitstream.WriteBits(uint64(cw&0x1FF), cw>>9)
}

// BitStream returns the underlying bitstream
func (this *ExpGolombEncoder) BitStream() kozo.OutputBitStream {
	return this.bitstream
}

// Write encodes the data provided into the bitstream. Return the number of byte
// written to the bitstream
func (this *ExpGolombEncoder) Write(block []byte) (int, error) {
	for i := range block {
		this.EncodeByte(block[i])
	}

	return len(block), nil
}

// ExpGolombDecoder Exponential Golomb Entropy Decoder
type ExpGolombDecoder struct {
	signed    bool
	bitstream kozo.InputBitStream
}

// NewExpGolombDecoder creates a new instance of ExpGolombDecoder.
// When sgn is true, decoded values are int8 cast back to bytes.
func NewExpGolombDecoder(bs kozo.InputBitStream, sgn bool) (*ExpGolombDecoder, error) {
	if bs == nil {
		return nil, errors.New("ExpGolomb codec: Invalid null bitstream parameter")
	}

	return &ExpGolombDecoder{bitstream: bs, signed: sgn}, nil
}

// Signed returns true if this decoder is sign aware
func (this *ExpGolombDecoder) Signed() bool {
	return this.signed
}

// Dispose this implementation does nothing
func (this *ExpGolombDecoder) Dispose() {
}

// DecodeByte decodes one byte from the bitstream
func (this *ExpGolombDecoder) DecodeByte() byte {
	if this.bitstream.ReadBit() == 1 {
		return 0
	}

	// Count the remaining zeros of the unary prefix
	w := uint(1)

	for this.bitstream.ReadBit() == 0 {
		w++
	}

	if !this.signed {
		return byte((1 << w) - 1 + this.bitstream.ReadBits(w))
	}

	// Magnitude bits plus trailing sign bit
	payload := this.bitstream.ReadBits(w + 1)
	res := (payload >> 1) + (1 << w) - 1

	if payload&1 == 1 {
		res = -res
	}

	return byte(res)
}

// BitStream returns the underlying bitstream
func (this *ExpGolombDecoder) BitStream() kozo.InputBitStream {
	return this.bitstream
}

// Read decodes data from the bitstream and return it in the provided buffer.
// Return the number of bytes read from the bitstream
func (this *ExpGolombDecoder) Read(block []byte) (int, error) {
	for i := range block {
		block[i] = this.DecodeByte()
	}

	return len(block), nil
}
