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
	"fmt"
	"strings"

	kozo "github.com/hbastiat/kozo"
)

const (
	NONE_TYPE    = uint32(0)  // No compression
	HUFFMAN_TYPE = uint32(1)  // Huffman
	FPAQ_TYPE    = uint32(2)  // Fast PAQ (order 0)
	PAQ_TYPE     = uint32(3)  // Obsolete
	RANGE_TYPE   = uint32(4)  // Range
	ANS0_TYPE    = uint32(5)  // Asymmetric Numerical System order 0
	CM_TYPE      = uint32(6)  // Context Model
	TPAQ_TYPE    = uint32(7)  // Tangelo PAQ
	ANS1_TYPE    = uint32(8)  // Asymmetric Numerical System order 1
	TPAQX_TYPE   = uint32(9)  // Tangelo PAQ Extra
	RESERVED1    = uint32(10) // Reserved
	RESERVED2    = uint32(11) // Reserved
	RESERVED3    = uint32(12) // Reserved
	RESERVED4    = uint32(13) // Reserved
	RESERVED5    = uint32(14) // Reserved
	RESERVED6    = uint32(15) // Reserved
)

var _CODEC_NAMES = map[uint32]string{
	NONE_TYPE:    "NONE",
	HUFFMAN_TYPE: "HUFFMAN",
	FPAQ_TYPE:    "FPAQ",
	RANGE_TYPE:   "RANGE",
	ANS0_TYPE:    "ANS0",
	CM_TYPE:      "CM",
	TPAQ_TYPE:    "TPAQ",
	ANS1_TYPE:    "ANS1",
	TPAQX_TYPE:   "TPAQX",
}

// newBitPredictor builds the predictor backing the binary codecs.
// TPAQ and TPAQX read their sizing from ctx ("codec" selects the
// extra mode inside the predictor).
func newBitPredictor(ctx *map[string]interface{}, entropyType uint32) (kozo.Predictor, error) {
	if entropyType == CM_TYPE {
		return NewCMPredictor()
	}

	return NewTPAQPredictor(ctx)
}

// NewEntropyDecoder creates a new entropy decoder using the provided type and bitstream
func NewEntropyDecoder(ibs kozo.InputBitStream, ctx map[string]interface{},
	entropyType uint32) (kozo.EntropyDecoder, error) {
	switch entropyType {
	case NONE_TYPE:
		return NewNullEntropyDecoder(ibs)

	case HUFFMAN_TYPE:
		return NewHuffmanDecoder(ibs)

	case FPAQ_TYPE:
		return NewFPAQDecoder(ibs)

	case RANGE_TYPE:
		return NewRangeDecoder(ibs)

	case ANS0_TYPE:
		return NewANSRangeDecoderWithCtx(ibs, &ctx, 0)

	case ANS1_TYPE:
		return NewANSRangeDecoderWithCtx(ibs, &ctx, 1)

	case CM_TYPE, TPAQ_TYPE, TPAQX_TYPE:
		predictor, err := newBitPredictor(&ctx, entropyType)

		if err != nil {
			return nil, err
		}

		return NewBinaryEntropyDecoder(ibs, predictor)
	}

	return nil, fmt.Errorf("Unsupported entropy codec type: '%c'", entropyType)
}

// NewEntropyEncoder creates a new entropy encoder using the provided type and bitstream
func NewEntropyEncoder(obs kozo.OutputBitStream, ctx map[string]interface{},
	entropyType uint32) (kozo.EntropyEncoder, error) {
	switch entropyType {
	case NONE_TYPE:
		return NewNullEntropyEncoder(obs)

	case HUFFMAN_TYPE:
		return NewHuffmanEncoder(obs)

	case FPAQ_TYPE:
		return NewFPAQEncoder(obs)

	case RANGE_TYPE:
		return NewRangeEncoder(obs)

	case ANS0_TYPE:
		return NewANSRangeEncoderWithCtx(obs, &ctx, 0)

	case ANS1_TYPE:
		return NewANSRangeEncoderWithCtx(obs, &ctx, 1)

	case CM_TYPE, TPAQ_TYPE, TPAQX_TYPE:
		predictor, err := newBitPredictor(&ctx, entropyType)

		if err != nil {
			return nil, err
		}

		return NewBinaryEntropyEncoder(obs, predictor)
	}

	return nil, fmt.Errorf("Unsupported entropy codec type: '%c'", entropyType)
}

// GetName returns the name of the entropy codec given its type
func GetName(entropyType uint32) string {
	if name, ok := _CODEC_NAMES[entropyType]; ok {
		return name
	}

	panic(fmt.Errorf("Unsupported entropy codec type: '%c'", entropyType))
}

// GetType returns the type of the entropy codec given its name
func GetType(entropyName string) uint32 {
	entropyName = strings.ToUpper(entropyName)

	for t, name := range _CODEC_NAMES {
		if name == entropyName {
			return t
		}
	}

	panic(fmt.Errorf("Unsupported entropy codec type: '%s'", entropyName))
}
