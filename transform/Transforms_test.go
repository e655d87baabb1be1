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

package transform

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	kozo "github.com/hbastiat/kozo"
)

func getByteTransform(name string) (kozo.ByteTransform, error) {
	switch name {
	case "RANK":
		return NewSBRT(SBRT_MODE_RANK)

	case "TIMESTAMP":
		return NewSBRT(SBRT_MODE_TIMESTAMP)

	case "MTFT":
		return NewMTFT()

	default:
		panic(fmt.Errorf("No such byte transform: '%s'", name))
	}
}

func TestRank(b *testing.T) {
	if err := testTransformCorrectness("RANK"); err != nil {
		b.Errorf(err.Error())
	}
}

func TestTimestamp(b *testing.T) {
	if err := testTransformCorrectness("TIMESTAMP"); err != nil {
		b.Errorf(err.Error())
	}
}

func TestMTFT(b *testing.T) {
	if err := testTransformCorrectness("MTFT"); err != nil {
		b.Errorf(err.Error())
	}
}

func testTransformCorrectness(name string) error {
	for ii := 0; ii < 20; ii++ {
		var arr []int

		if ii == 0 {
			arr = []int{0, 1, 2, 2, 2, 2, 7, 9, 9, 16, 16, 16, 1, 3,
				3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3}
		} else if ii == 1 {
			arr = make([]int, 800)

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
				val := rand.Intn(100)

				if val >= 33 {
					val = 0
				}

				arr[i] = val
			}
		} else {
			// Random data with runs
			arr = make([]int, 1024)
			idx := 20

			for idx < len(arr) {
				length := rand.Intn(40)

				if length%3 == 0 {
					length = 1
				}

				val := rand.Intn(256)
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
		input := make([]byte, size)
		output := make([]byte, size)
		reverse := make([]byte, size)

		for i := range arr {
			input[i] = byte(arr[i])
		}

		f, err := getByteTransform(name)

		if err != nil {
			return err
		}

		if _, _, err = f.Forward(input, output); err != nil {
			return fmt.Errorf("Test %v: forward error: %v", ii, err)
		}

		g, _ := getByteTransform(name)

		if _, _, err = g.Inverse(output, reverse); err != nil {
			return fmt.Errorf("Test %v: inverse error: %v", ii, err)
		}

		if !bytes.Equal(input, reverse) {
			return fmt.Errorf("Test %v: input and inverse are different", ii)
		}
	}

	return error(nil)
}

func TestBWT(b *testing.T) {
	if err := testBWTCorrectness(true); err != nil {
		b.Errorf(err.Error())
	}
}

func TestBWTS(b *testing.T) {
	if err := testBWTCorrectness(false); err != nil {
		b.Errorf(err.Error())
	}
}

func TestBWTMississippi(b *testing.T) {
	input := []byte("mississippi")
	output := make([]byte, len(input))
	bwt, _ := NewBWT()

	if _, _, err := bwt.Forward(input, output); err != nil {
		b.Errorf(err.Error())
		return
	}

	if string(output) != "pssmipissii" {
		b.Errorf("Expected 'pssmipissii', got '%s'", string(output))
	}

	if bwt.PrimaryIndex(0) != 4 {
		b.Errorf("Expected primary index 4, got %v", bwt.PrimaryIndex(0))
	}
}

func testBWTCorrectness(isBWT bool) error {
	for ii := 0; ii < 20; ii++ {
		var buf1 []byte

		if ii == 0 {
			buf1 = []byte("mississippi")
		} else if ii == 1 {
			buf1 = []byte("3.14159265358979323846264338327950288419716939937510")
		} else if ii == 2 {
			buf1 = []byte("SIX.MIXED.PIXIES.SIFT.SIXTY.PIXIE.DUST.BOXES")
		} else {
			buf1 = make([]byte, 128)

			for i := 0; i < len(buf1); i++ {
				buf1[i] = byte(65 + rand.Intn(4*ii))
			}
		}

		buf2 := make([]byte, len(buf1))
		buf3 := make([]byte, len(buf1))
		var bwt kozo.ByteTransform

		if isBWT {
			bwt, _ = NewBWT()
		} else {
			bwt, _ = NewBWTS()
		}

		if _, _, err := bwt.Forward(buf1, buf2); err != nil {
			return err
		}

		if _, _, err := bwt.Inverse(buf2, buf3); err != nil {
			return err
		}

		if !bytes.Equal(buf1, buf3) {
			return errors.New("Input and inverse are different")
		}
	}

	return error(nil)
}
