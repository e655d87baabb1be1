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
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	kozo "github.com/hbastiat/kozo"
)

func getByteFunction(name string) (kozo.ByteFunction, error) {
	switch name {
	case "LZ4":
		return NewLZ4Codec()

	case "SNAPPY":
		return NewSnappyCodec()

	case "ZRLT":
		return NewZRLT()

	case "RLT":
		return NewRLT()

	case "BWTBLOCK":
		return NewBWTBlockCodec()

	default:
		panic(fmt.Errorf("No such byte function: '%s'", name))
	}
}

func TestLZ4(b *testing.T) {
	if err := testFunctionCorrectness("LZ4"); err != nil {
		b.Errorf(err.Error())
	}
}

func TestSnappy(b *testing.T) {
	if err := testFunctionCorrectness("SNAPPY"); err != nil {
		b.Errorf(err.Error())
	}
}

func TestZRLT(b *testing.T) {
	if err := testFunctionCorrectness("ZRLT"); err != nil {
		b.Errorf(err.Error())
	}
}

func TestRLT(b *testing.T) {
	if err := testFunctionCorrectness("RLT"); err != nil {
		b.Errorf(err.Error())
	}
}

func TestBWTBlockCodec(b *testing.T) {
	if err := testFunctionCorrectness("BWTBLOCK"); err != nil {
		b.Errorf(err.Error())
	}
}

func TestTypeWord(b *testing.T) {
	if res := GetType("BWT+MTFT+ZRLT"); res != 0x17600000 {
		b.Errorf("Expected 0x17600000 for BWT+MTFT+ZRLT, got 0x%x", res)
	}

	name, err := GetName(0x17600000)

	if err != nil {
		b.Errorf(err.Error())
	}

	if name != "BWT+MTFT+ZRLT" {
		b.Errorf("Expected BWT+MTFT+ZRLT, got %v", name)
	}

	if res := GetType("NONE"); res != 0 {
		b.Errorf("Expected 0 for NONE, got 0x%x", res)
	}
}

func TestSequenceRoundTrip(b *testing.T) {
	ctx := make(map[string]interface{})
	ctx["blockSize"] = uint(1024 * 1024)
	ctx["size"] = uint(1024 * 1024)
	input := make([]byte, 4096)

	for i := range input {
		if i%7 == 0 {
			input[i] = 0
		} else {
			input[i] = byte(65 + i%26)
		}
	}

	fwdCtx := make(map[string]interface{})

	for k, v := range ctx {
		fwdCtx[k] = v
	}

	seq, err := New(&fwdCtx, GetType("BWT+MTFT+ZRLT"))

	if err != nil {
		b.Errorf(err.Error())
		return
	}

	output := make([]byte, seq.MaxEncodedLen(len(input)))
	srcIdx, dstIdx, err := seq.Forward(input, output)

	if err != nil {
		// Incompressible data is a valid outcome for a sequence
		return
	}

	if srcIdx != uint(len(input)) {
		b.Errorf("Expected %v bytes processed, got %v", len(input), srcIdx)
		return
	}

	invCtx := make(map[string]interface{})

	for k, v := range ctx {
		invCtx[k] = v
	}

	seq2, err := New(&invCtx, GetType("BWT+MTFT+ZRLT"))

	if err != nil {
		b.Errorf(err.Error())
		return
	}

	seq2.SetSkipFlags(seq.SkipFlags())
	reverse := make([]byte, len(input))

	if _, _, err = seq2.Inverse(output[0:dstIdx], reverse); err != nil {
		b.Errorf(err.Error())
		return
	}

	if !bytes.Equal(input, reverse) {
		b.Errorf("Input and inverse are different")
	}
}

func testFunctionCorrectness(name string) error {
	rng := 256

	if name == "ZRLT" {
		rng = 5
	}

	for ii := 0; ii < 20; ii++ {
		var arr []int

		if ii == 0 {
			arr = []int{0, 1, 2, 2, 2, 2, 7, 9, 9, 16, 16, 16, 1, 3,
				3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3}
		} else if ii == 1 {
			arr = make([]int, 80000)

			for i := range arr {
				arr[i] = 8
			}

			arr[0] = 1
		} else if ii == 2 {
			arr = []int{0, 0, 1, 1, 2, 2, 2, 2, 2, 2, 2, 3, 3, 3}
		} else if ii < 6 {
			// Lots of zeros
			arr = make([]int, 1<<uint(ii+6))

			for i := range arr {
				val := rand.Intn(rng)

				if val >= 33 {
					val = 0
				}

				arr[i] = val
			}
		} else {
			arr = make([]int, 1024)
			// Leave zeros at the beginning for ZRLT to succeed
			idx := 20

			for idx < len(arr) {
				length := rand.Intn(40)

				if length%3 == 0 {
					length = 1
				}

				val := rand.Intn(rng)
				end := idx + length

				if end >= len(arr) {
					end = len(arr) - 1
				}

				for j := idx; j < end; j++ {
					arr[j] = val
				}

				idx += length
			}
		}

		size := len(arr)
		f, err := getByteFunction(name)

		if err != nil {
			return err
		}

		input := make([]byte, size)
		output := make([]byte, f.MaxEncodedLen(size))
		reverse := make([]byte, size)

		for i := range arr {
			input[i] = byte(arr[i])
		}

		srcIdx, dstIdx, err := f.Forward(input, output)

		if err != nil || srcIdx != uint(size) {
			// Function may fail when compression ratio > 1.0
			continue
		}

		g, _ := getByteFunction(name)

		if _, _, err = g.Inverse(output[0:dstIdx], reverse); err != nil {
			return fmt.Errorf("Test %v: decoding error: %v", ii, err)
		}

		if !bytes.Equal(input, reverse) {
			return fmt.Errorf("Test %v: input and inverse are different", ii)
		}
	}

	return error(nil)
}
