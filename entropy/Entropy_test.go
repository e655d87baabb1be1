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
	"math/rand"
	"testing"

	kozo "github.com/hbastiat/kozo"
	"github.com/hbastiat/kozo/bitstream"
	"github.com/hbastiat/kozo/util"
)

func TestHuffman(b *testing.T) {
	if err := testEntropyCorrectness("HUFFMAN"); err != nil {
		b.Errorf(err.Error())
	}
}

func TestANS0(b *testing.T) {
	if err := testEntropyCorrectness("ANS0"); err != nil {
		b.Errorf(err.Error())
	}
}

func TestANS1(b *testing.T) {
	if err := testEntropyCorrectness("ANS1"); err != nil {
		b.Errorf(err.Error())
	}
}

func TestRange(b *testing.T) {
	if err := testEntropyCorrectness("RANGE"); err != nil {
		b.Errorf(err.Error())
	}
}

func TestFPAQ(b *testing.T) {
	if err := testEntropyCorrectness("FPAQ"); err != nil {
		b.Errorf(err.Error())
	}
}

func TestCM(b *testing.T) {
	if err := testEntropyCorrectness("CM"); err != nil {
		b.Errorf(err.Error())
	}
}

func TestTPAQ(b *testing.T) {
	if err := testEntropyCorrectness("TPAQ"); err != nil {
		b.Errorf(err.Error())
	}
}

func TestTPAQX(b *testing.T) {
	if err := testEntropyCorrectness("TPAQX"); err != nil {
		b.Errorf(err.Error())
	}
}

func TestNone(b *testing.T) {
	if err := testEntropyCorrectness("NONE"); err != nil {
		b.Errorf(err.Error())
	}
}

func TestExpGolomb(b *testing.T) {
	if err := testEntropyCorrectness("EXPGOLOMB"); err != nil {
		b.Errorf(err.Error())
	}
}

func TestRiceGolomb(b *testing.T) {
	if err := testEntropyCorrectness("RICEGOLOMB"); err != nil {
		b.Errorf(err.Error())
	}
}

func getEncoder(name string, obs kozo.OutputBitStream) kozo.EntropyEncoder {
	ctx := make(map[string]interface{})
	ctx["blockSize"] = uint(1024 * 1024)
	ctx["size"] = uint(1024 * 1024)
	ctx["codec"] = name

	switch name {
	case "EXPGOLOMB":
		res, _ := NewExpGolombEncoder(obs, true)
		return res

	case "RICEGOLOMB":
		res, _ := NewRiceGolombEncoder(obs, true, 4)
		return res

	default:
		res, err := NewEntropyEncoder(obs, ctx, GetType(name))

		if err != nil {
			panic(err.Error())
		}

		return res
	}
}

func getDecoder(name string, ibs kozo.InputBitStream) kozo.EntropyDecoder {
	ctx := make(map[string]interface{})
	ctx["blockSize"] = uint(1024 * 1024)
	ctx["size"] = uint(1024 * 1024)
	ctx["codec"] = name

	switch name {
	case "EXPGOLOMB":
		res, _ := NewExpGolombDecoder(ibs, true)
		return res

	case "RICEGOLOMB":
		res, _ := NewRiceGolombDecoder(ibs, true, 4)
		return res

	default:
		res, err := NewEntropyDecoder(ibs, ctx, GetType(name))

		if err != nil {
			panic(err.Error())
		}

		return res
	}
}

func TestFPAQPredictorCodec(t *testing.T) {
	values := make([]byte, 256)

	for i := range values {
		values[i] = byte(rand.Intn(64))
	}

	bs := util.NewBufferStream(make([]byte, 0, 16384))
	obs, _ := bitstream.NewDefaultOutputBitStream(bs, 16384)
	p1, _ := NewFPAQPredictor()
	ec, _ := NewBinaryEntropyEncoder(obs, p1)

	if _, err := ec.Write(values); err != nil {
		t.Fatalf("Error during encoding: %v", err)
	}

	ec.Dispose()
	obs.Close()

	ibs, _ := bitstream.NewDefaultInputBitStream(bs, 16384)
	p2, _ := NewFPAQPredictor()
	ed, _ := NewBinaryEntropyDecoder(ibs, p2)
	values2 := make([]byte, len(values))

	if _, err := ed.Read(values2); err != nil {
		t.Fatalf("Error during decoding: %v", err)
	}

	ed.Dispose()
	ibs.Close()
	bs.Close()

	if !kozo.SameByteSlices(values, values2, true) {
		t.Errorf("Input and inverse are different")
	}
}

// All three map variants must keep predictions in [0..4095] and drift
// toward an all-ones bit stream.
func TestAdaptiveProbMaps(t *testing.T) {
	logistic, _ := newLogisticAdaptiveProbMap(4, 7)
	fast, _ := newFastLogisticAdaptiveProbMap(4, 7)
	linear, _ := newLinearAdaptiveProbMap(4, 7)

	maps := map[string]func(int, int, int) int{
		"logistic": logistic.get,
		"fast":     fast.get,
		"linear":   linear.get,
	}

	for name, get := range maps {
		pr := 0

		for i := 0; i < 300; i++ {
			pr = get(1, 2048, 1)

			if pr < 0 || pr > 4095 {
				t.Fatalf("%v map: prediction %v out of range", name, pr)
			}
		}

		if pr < 3000 {
			t.Errorf("%v map: expected prediction above 3000 after ones, got %v", name, pr)
		}

		for i := 0; i < 300; i++ {
			pr = get(0, 2048, 1)
		}

		if pr > 1100 {
			t.Errorf("%v map: expected prediction below 1100 after zeros, got %v", name, pr)
		}
	}
}

func testEntropyCorrectness(name string) error {
	// Test behavior
	for ii := 1; ii < 20; ii++ {
		var values []byte

		if ii == 1 {
			values = make([]byte, 32)

			for i := range values {
				values[i] = byte(2) // all identical
			}
		} else if ii == 2 {
			values = []byte{0x3d, 0x4d, 0x54, 0x47, 0x5a, 0x36, 0x39, 0x26, 0x72, 0x6f, 0x6c, 0x65, 0x3d, 0x70, 0x72, 0x65}
		} else if ii == 3 {
			values = []byte{0, 0, 32, 15, -4 & 0xFF, 16, 0, 16, 0, 7, -1 & 0xFF, -4 & 0xFF, -32 & 0xFF, 0, 31, -1 & 0xFF}
		} else if ii == 5 {
			values = make([]byte, 32)

			for i := range values {
				values[i] = byte(2 + (i & 1)) // 2 symbols
			}
		} else {
			values = make([]byte, 256)

			for i := range values {
				values[i] = byte(64 + 4*ii + rand.Intn(8*ii+1))
			}
		}

		bs := util.NewBufferStream(make([]byte, 0, 16384))
		obs, _ := bitstream.NewDefaultOutputBitStream(bs, 16384)
		ec := getEncoder(name, obs)

		if ec == nil {
			return errors.New("Cannot create entropy encoder")
		}

		if _, err := ec.Write(values); err != nil {
			return fmt.Errorf("Error during encoding: %v", err)
		}

		ec.Dispose()
		obs.Close()

		ibs, _ := bitstream.NewDefaultInputBitStream(bs, 16384)
		ed := getDecoder(name, ibs)

		if ed == nil {
			return errors.New("Cannot create entropy decoder")
		}

		values2 := make([]byte, len(values))

		if _, err := ed.Read(values2); err != nil {
			return fmt.Errorf("Error during decoding: %v", err)
		}

		ed.Dispose()
		ibs.Close()
		bs.Close()

		if !kozo.SameByteSlices(values, values2, true) {
			return fmt.Errorf("Test %v: input and inverse are different", ii)
		}
	}

	return error(nil)
}
