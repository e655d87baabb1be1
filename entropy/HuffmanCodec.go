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
	"fmt"
	"sort"

	kozo "github.com/hbastiat/kozo"
)

const (
	_HUF_BATCH_BITS     = 12 // bits consumed per fast table lookup
	_HUF_BATCH_MASK     = (1 << _HUF_BATCH_BITS) - 1
	_HUF_FAST_CEILING   = (_HUF_BATCH_BITS << 8) | 0xFF
	_HUF_MAX_CHUNK_SIZE = uint(1 << 16)
	_HUF_NO_LENGTH      = (1 << 31) - 1
	_HUF_MAX_CODE_LEN   = 20
	_HUF_SORT_SPAN      = (_HUF_MAX_CODE_LEN << 8) + 256
)

// assignCanonicalCodes computes the canonical code of every symbol in
// syms given the code lengths. syms is reordered by (length, value)
// as a side effect. Returns -1 when a code would exceed the length cap.
func assignCanonicalCodes(lengths []byte, codes []uint, syms []int) int {
	count := len(syms)

	if count > 1 {
		// Bucket sort on (length-1)<<8 | symbol
		var present [_HUF_SORT_SPAN]byte

		for _, s := range syms {
			present[(int(lengths[s]-1)<<8)|s] = 1
		}

		n := 0

		for key, p := range present {
			if p == 0 {
				continue
			}

			syms[n] = key & 0xFF
			n++

			if n == count {
				break
			}
		}
	}

	code := uint(0)
	curLen := lengths[syms[0]]

	for _, s := range syms {
		if lengths[s] > curLen {
			code <<= (lengths[s] - curLen)
			curLen = lengths[s]

			if curLen > _HUF_MAX_CODE_LEN {
				return -1
			}
		}

		codes[s] = code
		code++
	}

	return count
}

// HuffmanEncoder is a static canonical Huffman encoder. Code lengths
// are computed in place without building a tree, following Moffat &
// Katajainen, "In-Place Calculation of Minimum-Redundancy Codes".
type HuffmanEncoder struct {
	bitstream kozo.OutputBitStream
	codes     [256]uint // length<<24 | canonical code
	alphabet  [256]int
	ordered   [256]int // symbols sorted by frequency
	chunkSize int
}

// NewHuffmanEncoder creates a new instance of HuffmanEncoder.
// An optional chunk size bounds how many bytes are coded before the
// frequency statistics reset: NewHuffmanEncoder(bs) or
// NewHuffmanEncoder(bs, 16384).
func NewHuffmanEncoder(bs kozo.OutputBitStream, args ...uint) (*HuffmanEncoder, error) {
	if bs == nil {
		return nil, errors.New("Invalid null bitstream parameter")
	}

	chkSize, err := huffmanChunkSize(args)

	if err != nil {
		return nil, err
	}

	this := &HuffmanEncoder{bitstream: bs, chunkSize: chkSize}

	for i := range this.codes {
		this.codes[i] = uint(i)
	}

	return this, nil
}

func huffmanChunkSize(args []uint) (int, error) {
	if len(args) > 1 {
		return 0, errors.New("At most one chunk size can be provided")
	}

	chkSize := _HUF_MAX_CHUNK_SIZE

	if len(args) == 1 {
		chkSize = args[0]
	}

	if chkSize < 1024 {
		return 0, errors.New("The chunk size must be at least 1024")
	}

	if chkSize > _HUF_MAX_CHUNK_SIZE {
		return 0, fmt.Errorf("The chunk size must be at most %d", _HUF_MAX_CHUNK_SIZE)
	}

	return int(chkSize), nil
}

// buildCodes derives code lengths from the chunk frequencies, sends
// the alphabet and the length deltas, then assigns canonical codes.
func (this *HuffmanEncoder) buildCodes(frequencies []int) (int, error) {
	if len(frequencies) != 256 {
		return 0, errors.New("Invalid frequencies parameter")
	}

	count := 0

	for i := range this.codes {
		this.codes[i] = 0

		if frequencies[i] > 0 {
			this.alphabet[count] = i
			count++
		}
	}

	syms := this.alphabet[0:count]
	EncodeAlphabet(this.bitstream, syms)
	var lengths [256]byte

	if err := this.computeLengths(frequencies, lengths[:], count); err != nil {
		return count, err
	}

	// Only the lengths travel in the bitstream, as signed deltas
	eg, err := NewExpGolombEncoder(this.bitstream, true)

	if err != nil {
		return count, err
	}

	prev := byte(2)

	for _, s := range syms {
		eg.EncodeByte(lengths[s] - prev)
		prev = lengths[s]
	}

	if assignCanonicalCodes(lengths[:], this.codes[:], this.ordered[0:count]) < 0 {
		return count, fmt.Errorf("Could not generate codes: max code length (%v bits) exceeded", _HUF_MAX_CODE_LEN)
	}

	for _, s := range syms {
		this.codes[s] |= uint(lengths[s]) << 24
	}

	return count, nil
}

func (this *HuffmanEncoder) computeLengths(frequencies []int, lengths []byte, count int) error {
	if count == 1 {
		this.ordered[0] = this.alphabet[0]
		lengths[this.alphabet[0]] = 1
		return nil
	}

	ordered := this.ordered[0:count]
	copy(ordered, this.alphabet[0:count])
	sort.Slice(ordered, func(i, j int) bool {
		if frequencies[ordered[i]] != frequencies[ordered[j]] {
			return frequencies[ordered[i]] < frequencies[ordered[j]]
		}

		return ordered[i] < ordered[j]
	})

	var scratch [256]int
	freqs := scratch[0:count]

	for i := range freqs {
		freqs[i] = frequencies[ordered[i]]
	}

	huffmanMergePhase(freqs)
	huffmanDepthPhase(freqs)

	for i, codeLen := range freqs {
		if codeLen == 0 || codeLen > _HUF_MAX_CODE_LEN {
			return fmt.Errorf("Could not generate codes: max code length (%v bits) exceeded", _HUF_MAX_CODE_LEN)
		}

		lengths[ordered[i]] = byte(codeLen)
	}

	return nil
}

// First pass of the in-place algorithm: the frequency array becomes
// an array of parent pointers for the internal tree nodes.
func huffmanMergePhase(data []int) {
	n := len(data)

	for s, r, t := 0, 0, 0; t < n-1; t++ {
		sum := 0

		for k := 0; k < 2; k++ {
			if s >= n || (r < t && data[r] < data[s]) {
				sum += data[r]
				data[r] = t
				r++
			} else {
				sum += data[s]

				if s > t {
					data[s] = 0
				}

				s++
			}
		}

		data[t] = sum
	}
}

// Second pass: convert parent pointers into leaf depths.
func huffmanDepthPhase(data []int) {
	n := len(data)
	levelTop := n - 2 // root
	depth := 1
	i := n
	nodesAtLevel := 2

	for i > 0 {
		k := levelTop

		for k > 0 && data[k-1] >= levelTop {
			k--
		}

		internal := levelTop - k
		leaves := nodesAtLevel - internal

		for j := 0; j < leaves; j++ {
			i--
			data[i] = depth
		}

		nodesAtLevel = internal << 1
		levelTop = k
		depth++
	}
}

// Write computes fresh statistics for each chunk of the block, sends
// the code lengths, then the codes
func (this *HuffmanEncoder) Write(block []byte) (int, error) {
	if block == nil {
		return 0, errors.New("Invalid null block parameter")
	}

	sizeChunk := this.chunkSize

	if sizeChunk == 0 {
		sizeChunk = len(block)
	}

	for startChunk := 0; startChunk < len(block); startChunk += sizeChunk {
		endChunk := startChunk + sizeChunk

		if endChunk > len(block) {
			endChunk = len(block)
		}

		var frequencies [256]int
		kozo.ComputeHistogram(block[startChunk:endChunk], frequencies[:], true, false)

		if _, err := this.buildCodes(frequencies[:]); err != nil {
			return 0, err
		}

		this.writeChunk(block[startChunk:endChunk])
	}

	return len(block), nil
}

func (this *HuffmanEncoder) writeChunk(chunk []byte) {
	bs := this.bitstream
	n := len(chunk)

	// Two codes fit in one bitstream call (2 * 20 bits max)
	for n >= 2 {
		c0 := this.codes[chunk[0]]
		len0 := c0 >> 24
		c1 := this.codes[chunk[1]]
		len1 := c1 >> 24
		bs.WriteBits((uint64(c0&0xFFFFFF)<<len1)|uint64(c1&((1<<len1)-1)), len0+len1)
		chunk = chunk[2:]
		n -= 2
	}

	if n == 1 {
		c := this.codes[chunk[0]]
		bs.WriteBits(uint64(c&0xFFFFFF), c>>24)
	}
}

func (this *HuffmanEncoder) Dispose() {
}

func (this *HuffmanEncoder) BitStream() kozo.OutputBitStream {
	return this.bitstream
}

// HuffmanDecoder is the matching table-driven decoder. A fast table
// resolves any codeword from its first _HUF_BATCH_BITS bits; longer
// codewords fall back to a per-length table walk.
type HuffmanDecoder struct {
	bitstream   kozo.InputBitStream
	codes       [256]uint
	alphabet    [256]int
	lengths     [256]byte
	fast        []uint16  // prefix -> length<<8 | symbol
	perLength   [256]uint // codes in canonical order
	lenOffsets  []int     // per length, index of first code (may be negative)
	chunkSize   int
	pending     uint64 // bits fetched but not yet consumed
	pendingBits uint
	minCodeLen  int8
}

// NewHuffmanDecoder creates a new instance of HuffmanDecoder.
// The optional chunk size mirrors the encoder's.
func NewHuffmanDecoder(bs kozo.InputBitStream, args ...uint) (*HuffmanDecoder, error) {
	if bs == nil {
		return nil, errors.New("Invalid null bitstream parameter")
	}

	chkSize, err := huffmanChunkSize(args)

	if err != nil {
		return nil, err
	}

	this := &HuffmanDecoder{bitstream: bs, chunkSize: chkSize}
	this.fast = make([]uint16, 1<<_HUF_BATCH_BITS)
	this.lenOffsets = make([]int, _HUF_MAX_CODE_LEN+1)
	this.minCodeLen = 8

	for i := range this.codes {
		this.lengths[i] = 8
		this.codes[i] = uint(i)
	}

	return this, nil
}

// ReadLengths decodes the alphabet and code lengths of the next chunk
// and rebuilds the decoding tables
func (this *HuffmanDecoder) ReadLengths() (int, error) {
	count, err := DecodeAlphabet(this.bitstream, this.alphabet[:])

	if count == 0 || err != nil {
		return count, err
	}

	eg, err := NewExpGolombDecoder(this.bitstream, true)

	if err != nil {
		return 0, err
	}

	this.minCodeLen = _HUF_MAX_CODE_LEN
	prev := int8(2)
	syms := this.alphabet[0:count]

	for i, s := range syms {
		if s > len(this.codes) {
			return 0, fmt.Errorf("Invalid bitstream: incorrect Huffman symbol %v", s)
		}

		this.codes[s] = 0
		cur := prev + int8(eg.DecodeByte())

		if cur <= 0 || cur > _HUF_MAX_CODE_LEN {
			return 0, fmt.Errorf("Invalid bitstream: incorrect size %v for Huffman symbol %v", cur, i)
		}

		if cur < this.minCodeLen {
			this.minCodeLen = cur
		}

		this.lengths[s] = byte(cur)
		prev = cur
	}

	if assignCanonicalCodes(this.lengths[:], this.codes[:], syms) < 0 {
		return count, fmt.Errorf("Could not generate codes: max code length (%v bits) exceeded", _HUF_MAX_CODE_LEN)
	}

	this.buildTables(count)
	return count, nil
}

func (this *HuffmanDecoder) buildTables(count int) {
	for i := range this.fast {
		this.fast[i] = 0
	}

	for i := range this.perLength {
		this.perLength[i] = 0
	}

	for i := range this.lenOffsets {
		this.lenOffsets[i] = _HUF_NO_LENGTH
	}

	curLen := byte(0)

	for i := 0; i < count; i++ {
		s := uint(this.alphabet[i])
		code := this.codes[s]

		if this.lengths[s] > curLen {
			curLen = this.lengths[s]
			this.lenOffsets[curLen] = i - int(code)
		}

		packed := (uint(this.lengths[s]) << 8) | s
		this.perLength[i] = packed

		if curLen < _HUF_BATCH_BITS {
			// Every batch value starting with this prefix decodes to s
			idx := code << (_HUF_BATCH_BITS - curLen)

			for end := idx + 1<<(_HUF_BATCH_BITS-curLen); idx < end; idx++ {
				this.fast[idx] = uint16(packed)
			}
		} else {
			this.fast[code>>(curLen-_HUF_BATCH_BITS)] = uint16(packed)
		}
	}
}

// Read decodes the block chunk by chunk, using the batched path away
// from the chunk tail
func (this *HuffmanDecoder) Read(block []byte) (int, error) {
	if block == nil {
		return 0, errors.New("Invalid null block parameter")
	}

	if this.minCodeLen == 0 {
		return 0, errors.New("Invalid minimum code length: 0")
	}

	end := len(block)
	sizeChunk := this.chunkSize

	if sizeChunk == 0 {
		sizeChunk = end
	}

	for startChunk := 0; startChunk < end; startChunk += sizeChunk {
		if r, err := this.ReadLengths(); r == 0 || err != nil {
			return startChunk, err
		}

		endChunk := startChunk + sizeChunk

		if endChunk > end {
			endChunk = end
		}

		// The batched reader refills 64 bits at a time, so stop it
		// enough symbols before the chunk tail
		tail := 64 / int(this.minCodeLen)

		if int(this.minCodeLen)*tail != 64 {
			tail++
		}

		batchedEnd := (endChunk - tail) & -4

		if batchedEnd < 0 {
			batchedEnd = 0
		}

		i := startChunk

		for ; i < batchedEnd; i += 4 {
			block[i] = this.readSymbolFast()
			block[i+1] = this.readSymbolFast()
			block[i+2] = this.readSymbolFast()
			block[i+3] = this.readSymbolFast()
		}

		for ; i < endChunk; i++ {
			block[i] = this.readSymbolSlow(0, 0)
		}
	}

	return len(block), nil
}

// readSymbolSlow extends the code one bit at a time until it matches
// a canonical code of that exact length.
func (this *HuffmanDecoder) readSymbolSlow(code int, codeLen uint) byte {
	for codeLen < _HUF_MAX_CODE_LEN {
		codeLen++
		code <<= 1

		if this.pendingBits == 0 {
			code |= this.bitstream.ReadBit()
		} else {
			this.pendingBits--
			code |= int((this.pending >> this.pendingBits) & 1)
		}

		offs := this.lenOffsets[codeLen]

		if offs == _HUF_NO_LENGTH {
			continue
		}

		if this.perLength[offs+code]>>8 == codeLen {
			return byte(this.perLength[offs+code])
		}
	}

	panic(errors.New("Invalid bitstream: incorrect Huffman code"))
}

// readSymbolFast requires 64 readable bits in the bitstream
func (this *HuffmanDecoder) readSymbolFast() byte {
	if this.pendingBits < _HUF_BATCH_BITS {
		// Shifting by 64-pendingBits zeroes the stale high bits
		this.pending = (this.pending << (64 - this.pendingBits)) | this.bitstream.ReadBits(64-this.pendingBits)
		this.pendingBits = 64
	}

	val := this.fast[int(this.pending>>(this.pendingBits-_HUF_BATCH_BITS))&_HUF_BATCH_MASK]

	if val > _HUF_FAST_CEILING {
		this.pendingBits -= _HUF_BATCH_BITS
		return this.readSymbolSlow(int(this.pending>>this.pendingBits)&_HUF_BATCH_MASK, _HUF_BATCH_BITS)
	}

	this.pendingBits -= uint(val >> 8)
	return byte(val)
}

func (this *HuffmanDecoder) BitStream() kozo.InputBitStream {
	return this.bitstream
}

func (this *HuffmanDecoder) Dispose() {
}
