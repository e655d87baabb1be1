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

package bitstream

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/hbastiat/kozo/util"
)

func TestBitStreamAligned(b *testing.T) {
	if err := testCorrectnessAligned1(); err != nil {
		b.Errorf(err.Error())
	}

	if err := testCorrectnessAligned2(); err != nil {
		b.Errorf(err.Error())
	}
}

func TestBitStreamMisaligned(b *testing.T) {
	if err := testCorrectnessMisaligned1(); err != nil {
		b.Errorf(err.Error())
	}

	if err := testCorrectnessMisaligned2(); err != nil {
		b.Errorf(err.Error())
	}
}

func testCorrectnessAligned1() error {
	values := make([]int, 100)

	// Check correctness of Read() and Written()
	for t := 1; t <= 32; t++ {
		bs := util.NewBufferStream(make([]byte, 0, 16384))
		obs, _ := NewDefaultOutputBitStream(bs, 16384)
		obs.WriteBits(0x0123456789ABCDEF, uint(t))
		obs.Close()

		ibs, _ := NewDefaultInputBitStream(bs, 16384)
		ibs.ReadBits(uint(t))

		if ibs.Read() != uint64(t) {
			return errors.New("Invalid number of bits read")
		}

		ibs.Close()
	}

	for test := 1; test <= 10; test++ {
		bs := util.NewBufferStream(make([]byte, 0, 16384))
		obs, _ := NewDefaultOutputBitStream(bs, 16384)

		for i := range values {
			if test < 5 {
				values[i] = rand.Intn(test*1000 + 100)
			} else {
				values[i] = rand.Intn(1 << 31)
			}
		}

		for i := range values {
			obs.WriteBits(uint64(values[i]), 32)
		}

		// Close first to force flush()
		obs.Close()

		ibs, _ := NewDefaultInputBitStream(bs, 16384)

		for i := range values {
			x := ibs.ReadBits(32)

			if int(x) != values[i] {
				return fmt.Errorf("Value mismatch at index %v: expected %v, got %v", i, values[i], x)
			}
		}

		ibs.Close()
		bs.Close()
	}

	return error(nil)
}

func testCorrectnessMisaligned1() error {
	values := make([]int, 100)

	// Check correctness of Read() and Written()
	for t := 1; t <= 32; t++ {
		bs := util.NewBufferStream(make([]byte, 0, 16384))
		obs, _ := NewDefaultOutputBitStream(bs, 16384)
		obs.WriteBit(1)
		obs.WriteBits(0x0123456789ABCDEF, uint(t))
		obs.Close()

		ibs, _ := NewDefaultInputBitStream(bs, 16384)
		ibs.ReadBit()
		ibs.ReadBits(uint(t))

		if ibs.Read() != uint64(t+1) {
			return errors.New("Invalid number of bits read")
		}

		ibs.Close()
	}

	for test := 1; test <= 10; test++ {
		bs := util.NewBufferStream(make([]byte, 0, 16384))
		obs, _ := NewDefaultOutputBitStream(bs, 16384)

		for i := range values {
			if test < 5 {
				values[i] = rand.Intn(test*1000 + 100)
			} else {
				values[i] = rand.Intn(1 << 31)
			}

			mask := (1 << (1 + uint(i&63))) - 1
			values[i] &= mask
		}

		for i := range values {
			obs.WriteBits(uint64(values[i]), 1+uint(i&63))
		}

		// Close first to force flush()
		obs.Close()

		ibs, _ := NewDefaultInputBitStream(bs, 16384)

		for i := range values {
			x := ibs.ReadBits(1 + uint(i&63))

			if int(x) != values[i] {
				return fmt.Errorf("Value mismatch at index %v: expected %v, got %v", i, values[i], x)
			}
		}

		ibs.Close()
		bs.Close()
	}

	return error(nil)
}

func testCorrectnessAligned2() error {
	input := make([]byte, 100)
	output := make([]byte, 100)

	for test := 1; test <= 10; test++ {
		bs := util.NewBufferStream(make([]byte, 0, 16384))
		obs, _ := NewDefaultOutputBitStream(bs, 16384)

		for i := range input {
			if test < 5 {
				input[i] = byte(rand.Intn(test*1000 + 100))
			} else {
				input[i] = byte(rand.Intn(1 << 31))
			}
		}

		count := uint(8 + test*(20+(test&1)) + (test & 3))
		obs.WriteArray(input, count)

		// Close first to force flush()
		obs.Close()

		ibs, _ := NewDefaultInputBitStream(bs, 16384)
		r := ibs.ReadArray(output, count)

		if r != count {
			return fmt.Errorf("Invalid number of bits read: expected %v, got %v", count, r)
		}

		for i := 0; i < int(r>>3); i++ {
			if output[i] != input[i] {
				return fmt.Errorf("Value mismatch at index %v: expected %v, got %v", i, input[i], output[i])
			}
		}

		ibs.Close()
		bs.Close()
	}

	return error(nil)
}

func testCorrectnessMisaligned2() error {
	input := make([]byte, 100)
	output := make([]byte, 100)

	for test := 1; test <= 10; test++ {
		bs := util.NewBufferStream(make([]byte, 0, 16384))
		obs, _ := NewDefaultOutputBitStream(bs, 16384)

		for i := range input {
			if test < 5 {
				input[i] = byte(rand.Intn(test*1000 + 100))
			} else {
				input[i] = byte(rand.Intn(1 << 31))
			}
		}

		count := uint(8 + test*(20+(test&1)) + (test & 3))
		obs.WriteBit(0)
		obs.WriteArray(input[1:], count)

		// Close first to force flush()
		obs.Close()

		ibs, _ := NewDefaultInputBitStream(bs, 16384)
		ibs.ReadBit()
		r := ibs.ReadArray(output[1:], count)

		if r != count {
			return fmt.Errorf("Invalid number of bits read: expected %v, got %v", count, r)
		}

		for i := 1; i < 1+int(r>>3); i++ {
			if output[i] != input[i] {
				return fmt.Errorf("Value mismatch at index %v: expected %v, got %v", i, input[i], output[i])
			}
		}

		ibs.Close()
		bs.Close()
	}

	return error(nil)
}
