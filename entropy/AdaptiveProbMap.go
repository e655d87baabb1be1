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

// An adaptive probability map refines a prediction given a context.
// Each context owns a row of cells indexed by the quantized incoming
// prediction; the cell pair around the prediction is nudged toward
// each observed bit.

// adaptTarget returns the 16 bit value a cell is pulled toward
// for the given bit.
func adaptTarget(bit int, rate uint) int {
	return (-bit & 65528) + (bit << rate)
}

// LogisticAdaptiveProbMap quantizes the prediction in the logistic
// domain, 33 cells per context, and interpolates between the two
// nearest cells.
type LogisticAdaptiveProbMap struct {
	cells []uint16
	pos   int // cell pair updated on the next call
	rate  uint
}

func newLogisticAdaptiveProbMap(n, rate uint) (*LogisticAdaptiveProbMap, error) {
	m := &LogisticAdaptiveProbMap{rate: rate, cells: make([]uint16, n*33)}
	seedLogisticRows(m.cells, n)
	return m, nil
}

func (this *LogisticAdaptiveProbMap) get(bit int, pr int, ctx int) int {
	target := adaptTarget(bit, this.rate)
	this.cells[this.pos+1] += uint16((target - int(this.cells[this.pos+1])) >> this.rate)
	this.cells[this.pos] += uint16((target - int(this.cells[this.pos])) >> this.rate)

	st := kozo.STRETCH[pr]
	this.pos = 33*ctx + ((st + 2048) >> 7)

	frac := st & 127
	return (int(this.cells[this.pos+1])*frac + int(this.cells[this.pos])*(128-frac)) >> 11
}

// FastLogisticAdaptiveProbMap is the single-cell variant: no
// interpolation, one cell touched per bit.
type FastLogisticAdaptiveProbMap struct {
	cells []uint16
	pos   int
	rate  uint
}

func newFastLogisticAdaptiveProbMap(n, rate uint) (*FastLogisticAdaptiveProbMap, error) {
	m := &FastLogisticAdaptiveProbMap{rate: rate, cells: make([]uint16, n*33)}
	seedLogisticRows(m.cells, n)
	return m, nil
}

func (this *FastLogisticAdaptiveProbMap) get(bit int, pr int, ctx int) int {
	target := adaptTarget(bit, this.rate)
	this.cells[this.pos] += uint16((target - int(this.cells[this.pos])) >> this.rate)
	this.pos = 33*ctx + ((kozo.STRETCH[pr] + 2048) >> 7)
	return int(this.cells[this.pos]) >> 4
}

// LinearAdaptiveProbMap quantizes the raw prediction, 65 cells per
// context, with interpolation.
type LinearAdaptiveProbMap struct {
	cells []uint16
	pos   int
	rate  uint
}

func newLinearAdaptiveProbMap(n, rate uint) (*LinearAdaptiveProbMap, error) {
	m := &LinearAdaptiveProbMap{rate: rate, cells: make([]uint16, n*65)}

	for j := 0; j <= 64; j++ {
		m.cells[j] = uint16(j<<6) << 4
	}

	for i := uint(1); i < n; i++ {
		copy(m.cells[i*65:], m.cells[0:65])
	}

	return m, nil
}

func (this *LinearAdaptiveProbMap) get(bit int, pr int, ctx int) int {
	target := adaptTarget(bit, this.rate)
	this.cells[this.pos+1] += uint16((target - int(this.cells[this.pos+1])) >> this.rate)
	this.cells[this.pos] += uint16((target - int(this.cells[this.pos])) >> this.rate)
	this.pos = 65*ctx + (pr >> 6)

	frac := pr & 127
	return (int(this.cells[this.pos+1])*frac + int(this.cells[this.pos])*(128-frac)) >> 11
}

// seedLogisticRows fills every 33-cell row with the squashed identity
// so the map starts as a no-op.
func seedLogisticRows(cells []uint16, n uint) {
	for j := 0; j <= 32; j++ {
		cells[j] = uint16(kozo.Squash((j-16)<<7) << 4)
	}

	for i := uint(1); i < n; i++ {
		copy(cells[i*33:], cells[0:33])
	}
}
