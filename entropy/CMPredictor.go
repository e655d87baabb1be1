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

const (
	_CM_RATE0 = 2 // order 0 counter
	_CM_RATE1 = 4 // order 1 counter
	_CM_RATE2 = 6 // SSE counters
)

// CMPredictor is a context model bit predictor mixing an order 0
// counter, an order 1 counter and an SSE stage keyed on the previous
// bytes and the current run. The model follows BCM by Ilya Muravyov
// (https://github.com/encode84/bcm).
type CMPredictor struct {
	bits     int32 // bit tree position inside the current byte
	prev     byte  // last complete byte
	prevPrev byte  // byte before last
	runLen   uint32
	runCtx   int32 // 256 when the run is 3+, else 0
	slot     int   // SSE bucket, pr>>12
	order1   [256][257]int32
	sse      [512][17]int32
	pr       int // mixed prediction, 16 bit scale
}

// NewCMPredictor creates a CMPredictor with flat counters
func NewCMPredictor() (*CMPredictor, error) {
	p := &CMPredictor{bits: 1, runLen: 1, slot: 8}

	for i := range p.order1 {
		for j := range p.order1[i] {
			p.order1[i][j] = 32768
		}
	}

	for i := range p.sse {
		for j := 0; j < 16; j++ {
			p.sse[i][j] = int32(j) << 12
		}

		p.sse[i][16] = 65520
	}

	p.mix()
	return p, nil
}

func (this *CMPredictor) mix() {
	row := &this.order1[this.bits]
	this.pr = int(13*row[256]+14*row[this.prev]+5*row[this.prevPrev]) >> 5
}

// Update adjusts the counters addressed by the current contexts
// toward the observed bit
func (this *CMPredictor) Update(bit byte) {
	c1 := &this.order1[this.bits]
	c2 := &this.sse[this.bits|this.runCtx]
	this.bits = (this.bits << 1) | int32(bit)

	if bit == 0 {
		c1[256] -= c1[256] >> _CM_RATE0
		c1[this.prev] -= c1[this.prev] >> _CM_RATE1
		c2[this.slot+1] -= c2[this.slot+1] >> _CM_RATE2
		c2[this.slot] -= c2[this.slot] >> _CM_RATE2
	} else {
		c1[256] += (0xFFFF - c1[256]) >> _CM_RATE0
		c1[this.prev] += (0xFFFF - c1[this.prev]) >> _CM_RATE1
		c2[this.slot+1] += (0xFFFF - c2[this.slot+1]) >> _CM_RATE2
		c2[this.slot] += (0xFFFF - c2[this.slot]) >> _CM_RATE2
	}

	if this.bits > 255 {
		// Byte boundary: rotate history and track the byte run
		this.prevPrev = this.prev
		this.prev = byte(this.bits)
		this.bits = 1

		if this.prev == this.prevPrev {
			this.runLen++

			if this.runLen > 2 {
				this.runCtx = 256
			}
		} else {
			this.runLen = 0
			this.runCtx = 0
		}
	}

	this.mix()
	this.slot = this.pr >> 12
}

// Get returns the probability of the next bit being 1 in [0..4095].
// The mixed prediction is refined by interpolating between the two
// SSE cells bracketing it.
func (this *CMPredictor) Get() int {
	cells := &this.sse[this.bits|this.runCtx]
	lo := int(cells[this.slot])
	hi := int(cells[this.slot+1])
	refined := lo + (((hi - lo) * (this.pr & 4095)) >> 12)
	return (this.pr + 3*refined + 32) >> 6
}
