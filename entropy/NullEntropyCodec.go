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
	kozo "github.com/hbastiat/kozo"
)

// Pass-through codec: bytes go to and from the bitstream untouched.
// Large blocks are sliced into bounded bitstream calls.

const _NULL_CODEC_CHUNK = 1 << 23 // bytes per bitstream call

type NullEntropyEncoder struct {
	bitstream kozo.OutputBitStream
}

func NewNullEntropyEncoder(bs kozo.OutputBitStream) (*NullEntropyEncoder, error) {
	return &NullEntropyEncoder{bitstream: bs}, nil
}

func (this *NullEntropyEncoder) Write(block []byte) (int, error) {
	written := 0

	for len(block) > 0 {
		n := len(block)

		if n > _NULL_CODEC_CHUNK {
			n = _NULL_CODEC_CHUNK
		}

		written += int(this.bitstream.WriteArray(block, uint(8*n)) >> 3)
		block = block[n:]
	}

	return written, nil
}

func (this *NullEntropyEncoder) BitStream() kozo.OutputBitStream {
	return this.bitstream
}

func (this *NullEntropyEncoder) Dispose() {
}

type NullEntropyDecoder struct {
	bitstream kozo.InputBitStream
}

func NewNullEntropyDecoder(bs kozo.InputBitStream) (*NullEntropyDecoder, error) {
	return &NullEntropyDecoder{bitstream: bs}, nil
}

func (this *NullEntropyDecoder) Read(block []byte) (int, error) {
	read := 0

	for len(block) > 0 {
		n := len(block)

		if n > _NULL_CODEC_CHUNK {
			n = _NULL_CODEC_CHUNK
		}

		read += int(this.bitstream.ReadArray(block, uint(8*n)) >> 3)
		block = block[n:]
	}

	return read, nil
}

func (this *NullEntropyDecoder) DecodeByte() byte {
	return byte(this.bitstream.ReadBits(8))
}

func (this *NullEntropyDecoder) BitStream() kozo.InputBitStream {
	return this.bitstream
}

func (this *NullEntropyDecoder) Dispose() {
}
