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
	"fmt"
	"strings"

	kozo "github.com/hbastiat/kozo"
	"github.com/hbastiat/kozo/transform"
)

const (
	_BFF_ONE_SHIFT = 4                        // bits per transform
	_BFF_MAX_SHIFT = (8 - 1) * _BFF_ONE_SHIFT // 8 transforms
	_BFF_MASK      = (1 << _BFF_ONE_SHIFT) - 1

	// Up to 16 transforms can be declared (4 bit index)
	NONE_TYPE   = uint32(0)  // Copy
	BWT_TYPE    = uint32(1)  // Burrows Wheeler
	BWTS_TYPE   = uint32(2)  // Burrows Wheeler Scott
	LZ4_TYPE    = uint32(3)  // LZ4
	SNAPPY_TYPE = uint32(4)  // Snappy
	RLT_TYPE    = uint32(5)  // Run Length
	ZRLT_TYPE   = uint32(6)  // Zero Run Length
	MTFT_TYPE   = uint32(7)  // Move To Front
	RANK_TYPE   = uint32(8)  // Rank
	X86_TYPE    = uint32(9)  // X86 codec
	DICT_TYPE   = uint32(10) // Text codec
)

// New creates a new instance of ByteTransformSequence based on the provided
// function type.
func New(ctx *map[string]interface{}, functionType uint32) (*ByteTransformSequence, error) {
	nbtr := 0

	// Several transforms
	for s := _BFF_MAX_SHIFT; s >= 0; s -= _BFF_ONE_SHIFT {
		if (functionType>>uint(s))&_BFF_MASK != NONE_TYPE {
			nbtr++
		}
	}

	// Only null transforms ? Keep first.
	if nbtr == 0 {
		nbtr = 1
	}

	transforms := make([]kozo.ByteTransform, nbtr)
	nbtr = 0
	var err error

	for s := _BFF_MAX_SHIFT; s >= 0 && nbtr < len(transforms); s -= _BFF_ONE_SHIFT {
		t := (functionType >> uint(s)) & _BFF_MASK

		// Skip unused slots, unless the word holds only null transforms
		if t != NONE_TYPE || functionType == 0 {
			if transforms[nbtr], err = newToken(ctx, t); err != nil {
				return nil, err
			}

			nbtr++
		}
	}

	return NewByteTransformSequence(transforms)
}

func newToken(ctx *map[string]interface{}, functionType uint32) (kozo.ByteTransform, error) {
	switch functionType {

	case DICT_TYPE:
		return NewTextCodecWithCtx(ctx)

	case BWT_TYPE:
		return NewBWTBlockCodecWithCtx(ctx)

	case BWTS_TYPE:
		return transform.NewBWTSWithCtx(ctx)

	case LZ4_TYPE:
		return NewLZ4CodecWithCtx(ctx)

	case SNAPPY_TYPE:
		return NewSnappyCodecWithCtx(ctx)

	case RANK_TYPE:
		(*ctx)["sbrt"] = transform.SBRT_MODE_RANK
		return transform.NewSBRTWithCtx(ctx)

	case MTFT_TYPE:
		return transform.NewMTFTWithCtx(ctx)

	case ZRLT_TYPE:
		return NewZRLTWithCtx(ctx)

	case RLT_TYPE:
		return NewRLTWithCtx(ctx)

	case X86_TYPE:
		return NewX86CodecWithCtx(ctx)

	case NONE_TYPE:
		return NewNullFunctionWithCtx(ctx)

	default:
		return nil, fmt.Errorf("Unknown transform type: '%v'", functionType)
	}
}

// GetName transforms the function type into a function name
func GetName(functionType uint32) (string, error) {
	var s string
	var name string
	var err error

	for i := uint(0); i < 8; i++ {
		t := (functionType >> (_BFF_MAX_SHIFT - _BFF_ONE_SHIFT*i)) & _BFF_MASK

		if t == NONE_TYPE {
			continue
		}

		if name, err = getByteFunctionNameToken(t); err != nil {
			return "", err
		}

		if len(s) != 0 {
			s += "+"
		}

		s += name
	}

	if len(s) == 0 {
		if name, err = getByteFunctionNameToken(NONE_TYPE); err != nil {
			return "", err
		}

		s += name
	}

	return s, nil
}

func getByteFunctionNameToken(functionType uint32) (string, error) {
	switch functionType {

	case DICT_TYPE:
		return "TEXT", nil

	case BWT_TYPE:
		return "BWT", nil

	case BWTS_TYPE:
		return "BWTS", nil

	case LZ4_TYPE:
		return "LZ4", nil

	case SNAPPY_TYPE:
		return "SNAPPY", nil

	case X86_TYPE:
		return "X86", nil

	case ZRLT_TYPE:
		return "ZRLT", nil

	case RLT_TYPE:
		return "RLT", nil

	case RANK_TYPE:
		return "RANK", nil

	case MTFT_TYPE:
		return "MTFT", nil

	case NONE_TYPE:
		return "NONE", nil

	default:
		return "", fmt.Errorf("Unknown transform type: '%v'", functionType)
	}
}

// GetType transforms the function name into a function type.
// The returned type contains 8 transform type values (masks).
func GetType(name string) uint32 {
	if strings.IndexByte(name, byte('+')) < 0 {
		return getByteFunctionTypeToken(name) << _BFF_MAX_SHIFT
	}

	tokens := strings.Split(name, "+")

	if len(tokens) == 0 {
		panic(fmt.Errorf("Unknown transform type: '%v'", name))
	}

	if len(tokens) > 8 {
		panic(fmt.Errorf("Only 8 transforms allowed: '%v'", name))
	}

	res := uint32(0)
	shift := _BFF_MAX_SHIFT

	for _, token := range tokens {
		tkType := getByteFunctionTypeToken(token)

		// Skip null transform
		if tkType != NONE_TYPE {
			res |= (tkType << shift)
			shift -= _BFF_ONE_SHIFT
		}
	}

	return res
}

func getByteFunctionTypeToken(name string) uint32 {
	name = strings.ToUpper(name)

	switch name {

	case "TEXT":
		return DICT_TYPE

	case "BWT":
		return BWT_TYPE

	case "BWTS":
		return BWTS_TYPE

	case "LZ4":
		return LZ4_TYPE

	case "SNAPPY":
		return SNAPPY_TYPE

	case "X86":
		return X86_TYPE

	case "RANK":
		return RANK_TYPE

	case "MTFT":
		return MTFT_TYPE

	case "ZRLT":
		return ZRLT_TYPE

	case "RLT":
		return RLT_TYPE

	case "NONE":
		return NONE_TYPE

	default:
		panic(fmt.Errorf("Unknown transform type: '%v'", name))
	}
}
