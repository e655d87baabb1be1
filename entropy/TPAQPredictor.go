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

// TPAQ bit predictor, in the lineage of Tangelo 2.4 (Jan Ondrus) and
// PAQ8 (Matt Mahoney). Seven context models feed bit histories through
// a shared state machine; their probabilities are combined by a small
// neural mixer selected per byte, with an optional SSE stage on top.
// See http://encode.ru/threads/1738-TANGELO-new-compressor-(derived-from-PAQ8-FP8)

const (
	_TPAQ_MAX_MATCH     = 88
	_TPAQ_HISTORY_SIZE  = 64 * 1024 * 1024
	_TPAQ_ANCHORS_SIZE  = 16 * 1024 * 1024
	_TPAQ_HISTORY_MASK  = _TPAQ_HISTORY_SIZE - 1
	_TPAQ_MASK_80808080 = int32(-2139062144) // 0x80808080
	_TPAQ_MASK_F0F0F0F0 = int32(-252645136)  // 0xF0F0F0F0
	_TPAQ_MASK_4F4FFFFF = int32(1330642943)  // 0x4F4FFFFF
	_TPAQ_HASH          = int32(0x7FEB352D)
	_TPAQ_MAX_RATE      = 60 << 7
	_TPAQ_MIN_RATE      = 11 << 7
)

// Bit history state machine. State 0 means no bits seen; states 1-30
// cover all sequences of 1-4 bits; higher states approximate a pair of
// bit counts (n0,n1), shedding part of the opposite count when a bit
// arrives so that fresh data outweighs old.
var _TPAQ_NEXT_STATE = [2][256]uint8{
	// After a 0 bit
	{
		1, 3, 143, 4, 5, 6, 7, 8, 9, 10,
		11, 12, 13, 14, 15, 16, 17, 18, 19, 20,
		21, 22, 23, 24, 25, 26, 27, 28, 29, 30,
		31, 32, 33, 34, 35, 36, 37, 38, 39, 40,
		41, 42, 43, 44, 45, 46, 47, 48, 49, 50,
		51, 52, 47, 54, 55, 56, 57, 58, 59, 60,
		61, 62, 63, 64, 65, 66, 67, 68, 69, 6,
		71, 71, 71, 61, 75, 56, 77, 78, 77, 80,
		81, 82, 83, 84, 85, 86, 87, 88, 77, 90,
		91, 92, 80, 94, 95, 96, 97, 98, 99, 90,
		101, 94, 103, 101, 102, 104, 107, 104, 105, 108,
		111, 112, 113, 114, 115, 116, 92, 118, 94, 103,
		119, 122, 123, 94, 113, 126, 113, 128, 129, 114,
		131, 132, 112, 134, 111, 134, 110, 134, 134, 128,
		128, 142, 143, 115, 113, 142, 128, 148, 149, 79,
		148, 142, 148, 150, 155, 149, 157, 149, 159, 149,
		131, 101, 98, 115, 114, 91, 79, 58, 1, 170,
		129, 128, 110, 174, 128, 176, 129, 174, 179, 174,
		176, 141, 157, 179, 185, 157, 187, 188, 168, 151,
		191, 192, 188, 187, 172, 175, 170, 152, 185, 170,
		176, 170, 203, 148, 185, 203, 185, 192, 209, 188,
		211, 192, 213, 214, 188, 216, 168, 84, 54, 54,
		221, 54, 55, 85, 69, 63, 56, 86, 58, 230,
		231, 57, 229, 56, 224, 54, 54, 66, 58, 54,
		61, 57, 222, 78, 85, 82, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0,
	},
	// After a 1 bit
	{
		2, 163, 169, 163, 165, 89, 245, 217, 245, 245,
		233, 244, 227, 74, 221, 221, 218, 226, 243, 218,
		238, 242, 74, 238, 241, 240, 239, 224, 225, 221,
		232, 72, 224, 228, 223, 225, 238, 73, 167, 76,
		237, 234, 231, 72, 31, 63, 225, 237, 236, 235,
		53, 234, 53, 234, 229, 219, 229, 233, 232, 228,
		226, 72, 74, 222, 75, 220, 167, 57, 218, 70,
		168, 72, 73, 74, 217, 76, 167, 79, 79, 166,
		162, 162, 162, 162, 165, 89, 89, 165, 89, 162,
		93, 93, 93, 161, 100, 93, 93, 93, 93, 93,
		161, 102, 120, 104, 105, 106, 108, 106, 109, 110,
		160, 134, 108, 108, 126, 117, 117, 121, 119, 120,
		107, 124, 117, 117, 125, 127, 124, 139, 130, 124,
		133, 109, 110, 135, 110, 136, 137, 138, 127, 140,
		141, 145, 144, 124, 125, 146, 147, 151, 125, 150,
		127, 152, 153, 154, 156, 139, 158, 139, 156, 139,
		130, 117, 163, 164, 141, 163, 147, 2, 2, 199,
		171, 172, 173, 177, 175, 171, 171, 178, 180, 172,
		181, 182, 183, 184, 186, 178, 189, 181, 181, 190,
		193, 182, 182, 194, 195, 196, 197, 198, 169, 200,
		201, 202, 204, 180, 205, 206, 207, 208, 210, 194,
		212, 184, 215, 193, 184, 208, 193, 163, 219, 168,
		94, 217, 223, 224, 225, 76, 227, 217, 229, 219,
		79, 86, 165, 217, 214, 225, 216, 216, 234, 75,
		214, 237, 74, 74, 163, 217, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0,
	},
}

// Stretched probability of a 1 bit for each state
var _TPAQ_STATE_PROBS = [256]int32{
	-31, -400, 406, -547, -642, -743, -827, -901,
	-901, -974, -945, -955, -1060, -1031, -1044, -956,
	-994, -1035, -1147, -1069, -1111, -1145, -1096, -1084,
	-1171, -1199, -1062, -1498, -1199, -1199, -1328, -1405,
	-1275, -1248, -1167, -1448, -1441, -1199, -1357, -1160,
	-1437, -1428, -1238, -1343, -1526, -1331, -1443, -2047,
	-2047, -2044, -2047, -2047, -2047, -232, -414, -573,
	-517, -768, -627, -666, -644, -740, -721, -829,
	-770, -963, -863, -1099, -811, -830, -277, -1036,
	-286, -218, -42, -411, 141, -1014, -1028, -226,
	-469, -540, -573, -581, -594, -610, -628, -711,
	-670, -144, -408, -485, -464, -173, -221, -310,
	-335, -375, -324, -413, -99, -179, -105, -150,
	-63, -9, 56, 83, 119, 144, 198, 118,
	-42, -96, -188, -285, -376, 107, -138, 38,
	-82, 186, -114, -190, 200, 327, 65, 406,
	108, -95, 308, 171, -18, 343, 135, 398,
	415, 464, 514, 494, 508, 519, 92, -123,
	343, 575, 585, 516, -7, -156, 209, 574,
	613, 621, 670, 107, 989, 210, 961, 246,
	254, -12, -108, 97, 281, -143, 41, 173,
	-209, 583, -55, 250, 354, 558, 43, 274,
	14, 488, 545, 84, 528, 519, 587, 634,
	663, 95, 700, 94, -184, 730, 742, 162,
	-10, 708, 692, 773, 707, 855, 811, 703,
	790, 871, 806, 9, 867, 840, 990, 1023,
	1409, 194, 1397, 183, 1462, 178, -23, 1403,
	247, 172, 1, -32, -170, 72, -508, -46,
	-365, -26, -146, 101, -18, -163, -422, -461,
	-146, -69, -78, -319, -334, -232, -99, 0,
	47, -74, 0, -452, 14, -57, 1, 1,
	1, 1, 1, 1, 1, 1, 1, 1,
}

func tpaqHash(x, y int32) int32 {
	h := x*_TPAQ_HASH ^ y*_TPAQ_HASH
	return h>>1 ^ h>>9 ^ x>>2 ^ y>>3 ^ _TPAQ_HASH
}

// tpaqContext scrambles a context value with its model id so that the
// seven models address disjoint regions of the shared state table.
func tpaqContext(modelID, cx int32) int32 {
	cx = cx*987654323 + modelID
	cx = (cx << 16) | int32(uint32(cx)>>16)
	return cx*123456791 + modelID
}

// tpaqModel is one context model: a bit-history table and the cell
// currently addressed within it.
type tpaqModel struct {
	states []uint8
	mask   int32
	cell   int32 // active index into states
	ctx    int32 // context set at the last byte boundary
}

type TPAQPredictor struct {
	pr       int   // last prediction, 0-4095
	partial  int32 // bits of the byte in progress, with a leading 1
	last4    int32 // previous 4 whole bytes, newest in the low 8 bits
	prior4   int32 // bytes 8 to 5 back
	bitPos   uint  // bits accumulated in partial (0-7)
	pos      int32 // bytes seen
	highBits int32 // count of bytes with the top bit set
	matchLen int32
	matchPos int32
	rollHash int32
	models   [7]tpaqModel
	mixers   []tpaqMixer
	mixer    *tpaqMixer // selected per byte from last4
	history  []int8
	anchors  []int32 // rolling hash -> last position
	anchMask int32
	apm0     *LogisticAdaptiveProbMap
	apm1     *LogisticAdaptiveProbMap
	extra    bool
}

// NewTPAQPredictor creates a TPAQPredictor. ctx (optional) sizes the
// model: "blockSize" scales the shared state table, "size" the mixer
// bank, and "codec"=="TPAQX" enables the larger tables plus SSE.
func NewTPAQPredictor(ctx *map[string]interface{}) (*TPAQPredictor, error) {
	this := new(TPAQPredictor)
	statesSize := 1 << 28
	mixersSize := 1 << 12
	anchorsSize := _TPAQ_ANCHORS_SIZE

	if ctx != nil {
		if codec, containsKey := (*ctx)["codec"]; containsKey {
			this.extra = codec.(string) == "TPAQX"
		}

		// The requested block size drives the state table: bigger
		// blocks can usefully fill more states
		rbsz := (*ctx)["blockSize"].(uint)

		switch {
		case rbsz >= 64*1024*1024:
			statesSize = 1 << 29
		case rbsz >= 16*1024*1024:
			statesSize = 1 << 28
		case rbsz >= 1024*1024:
			statesSize = 1 << 27
		default:
			statesSize = 1 << 26
		}

		// The actual block size drives the mixer bank: too many
		// mixers hurt small blocks, too few hurt big ones
		absz := (*ctx)["size"].(uint)

		switch {
		case absz >= 16*1024*1024:
			mixersSize = 1 << 16
		case absz >= 8*1024*1024:
			mixersSize = 1 << 14
		case absz >= 4*1024*1024:
			mixersSize = 1 << 12
		case absz >= 1024*1024:
			mixersSize = 1 << 10
		default:
			mixersSize = 1 << 9
		}
	}

	if this.extra {
		statesSize <<= 1
		mixersSize <<= 1
		anchorsSize <<= 2
	}

	this.mixers = make([]tpaqMixer, mixersSize)

	for i := range this.mixers {
		this.mixers[i].init()
	}

	this.mixer = &this.mixers[0]
	this.pr = 2048
	this.partial = 1
	this.history = make([]int8, _TPAQ_HISTORY_SIZE)
	this.anchors = make([]int32, anchorsSize)
	this.anchMask = int32(anchorsSize - 1)

	// Models 0 and 1 use direct order 1/2 tables, the rest share one
	// large hashed table
	shared := make([]uint8, statesSize)
	this.models[0] = tpaqModel{states: make([]uint8, 1<<16), mask: 1<<16 - 1}
	this.models[1] = tpaqModel{states: make([]uint8, 1<<24), mask: 1<<24 - 1}

	for i := 2; i < 7; i++ {
		this.models[i] = tpaqModel{states: shared, mask: int32(statesSize - 1)}
	}

	var err error

	if this.extra {
		this.apm0, err = newLogisticAdaptiveProbMap(256, 7)

		if err == nil {
			this.apm1, err = newLogisticAdaptiveProbMap(65536, 7)
		}
	}

	return this, err
}

// Update trains the model with the observed bit and computes the
// prediction for the next one
func (this *TPAQPredictor) Update(bit byte) {
	y := int(bit)
	this.mixer.update(y)
	this.bitPos++
	this.partial = (this.partial << 1) | int32(bit)

	if this.partial > 255 {
		this.shiftByte()
	}

	// Advance every bit history, then re-aim it at the new context
	c := this.partial
	next := &_TPAQ_NEXT_STATE[bit]
	var stretched [7]int32

	for i := range this.models {
		m := &this.models[i]
		m.states[m.cell] = next[m.states[m.cell]]
		m.cell = (m.ctx + c) & m.mask
		stretched[i] = _TPAQ_STATE_PROBS[m.states[m.cell]]
	}

	p := this.mixer.get(&stretched, this.matchPrediction())

	// Secondary estimation, only in extra mode
	if this.extra {
		if this.highBits < (this.pos >> 3) {
			p = this.apm1.get(y, p, int(this.models[0].ctx+c))
		} else {
			if this.highBits >= (this.pos >> 2) {
				p = this.apm0.get(y, p, int(this.partial))
			}

			p = (3*this.apm1.get(y, p, int(this.models[0].ctx+c)) + p + 2) >> 2
		}
	}

	this.pr = p + int((uint32(p)-2048)>>31)
}

// shiftByte folds the completed byte into the running contexts and
// reselects the per-byte model state.
func (this *TPAQPredictor) shiftByte() {
	this.history[this.pos&_TPAQ_HISTORY_MASK] = int8(this.partial)
	this.pos++
	this.prior4 = (this.prior4 << 8) | ((this.last4 >> 24) & 0xFF)
	this.last4 = (this.last4 << 8) | (this.partial & 0xFF)
	this.rollHash = (((this.rollHash * _TPAQ_HASH) << 4) + this.last4) & this.anchMask
	this.partial = 1
	this.bitPos = 0
	this.highBits += (this.last4 >> 7) & 1

	this.mixer = &this.mixers[this.last4&int32(len(this.mixers)-1)]

	this.models[0].ctx = (this.last4 & 0xFF) << 8
	this.models[1].ctx = (this.last4 & 0xFFFF) << 8
	this.models[2].ctx = tpaqContext(2, this.last4&0x00FFFFFF)
	this.models[3].ctx = tpaqContext(3, this.last4)

	if this.highBits < this.pos>>2 {
		// Mostly 7 bit bytes: letter-shaped contexts
		h1 := this.last4 & _TPAQ_MASK_80808080

		if h1 == 0 {
			h1 = this.last4 & _TPAQ_MASK_4F4FFFFF
		}

		h2 := this.prior4 & _TPAQ_MASK_80808080

		if h2 == 0 {
			h2 = this.prior4 & _TPAQ_MASK_4F4FFFFF
		}

		this.models[4].ctx = tpaqContext(this.last4&0xFFFF, this.last4^(this.prior4&0xFFFF))
		this.models[5].ctx = tpaqHash(h1, h2)
		this.models[6].ctx = tpaqHash(this.prior4&_TPAQ_MASK_F0F0F0F0, this.last4&_TPAQ_MASK_F0F0F0F0)
	} else {
		// Mostly binary: nibble and sparse contexts
		this.models[4].ctx = tpaqContext(_TPAQ_HASH, this.last4^(this.last4&0x000FFFFF))
		this.models[5].ctx = tpaqHash(this.models[1].ctx, this.prior4>>16)
		this.models[6].ctx = this.models[0].ctx | (this.prior4 << 16)
	}

	this.updateMatch()
	this.anchors[this.rollHash] = this.pos
}

// Get returns the probability of the next bit being 1 in [0..4095]
func (this *TPAQPredictor) Get() int {
	return this.pr
}

// updateMatch extends the running match or looks one up through the
// anchor table (LZ style).
func (this *TPAQPredictor) updateMatch() {
	if this.matchLen > 0 {
		if this.matchLen < _TPAQ_MAX_MATCH {
			this.matchLen++
		}

		this.matchPos++
		return
	}

	this.matchPos = this.anchors[this.rollHash]

	if this.matchPos == 0 || this.pos-this.matchPos > _TPAQ_HISTORY_MASK {
		return
	}

	r := int32(1)

	for r <= _TPAQ_MAX_MATCH && this.history[(this.pos-r)&_TPAQ_HISTORY_MASK] == this.history[(this.matchPos-r)&_TPAQ_HISTORY_MASK] {
		r++
	}

	this.matchLen = r - 1
}

// matchPrediction turns the current match into a stretched input in
// [-2048..2048], signed by the predicted bit.
func (this *TPAQPredictor) matchPrediction() int32 {
	if this.matchLen == 0 {
		return 0
	}

	predicted := this.history[this.matchPos&_TPAQ_HISTORY_MASK]

	if this.partial != ((int32(predicted)&0xFF)|256)>>(8-this.bitPos) {
		this.matchLen = 0
		return 0
	}

	var p int32

	if this.matchLen <= 24 {
		p = this.matchLen
	} else {
		p = 24 + ((this.matchLen - 24) >> 3)
	}

	if (predicted>>(7-this.bitPos))&1 == 0 {
		p = -p
	}

	return p << 6
}

// tpaqMixer is a single layer neural unit over the 7 model inputs
// plus the match input.
type tpaqMixer struct {
	pr      int // squashed output
	skew    int32
	weights [8]int32
	inputs  [8]int32
	rate    int32
}

func (this *tpaqMixer) init() {
	this.pr = 2048
	this.skew = 0
	this.rate = _TPAQ_MAX_RATE

	for i := range this.weights {
		this.weights[i] = 32768
	}
}

// update trains the weights against the coding error of the last
// prediction, with a learn rate decaying toward a floor
func (this *tpaqMixer) update(bit int) {
	err := (int32((bit<<12)-this.pr) * this.rate) >> 10

	if err == 0 {
		return
	}

	if this.rate > _TPAQ_MIN_RATE {
		this.rate--
	}

	this.skew += err

	for i := range this.weights {
		this.weights[i] += (this.inputs[i] * err) >> 12
	}
}

func (this *tpaqMixer) get(stretched *[7]int32, match int32) int {
	copy(this.inputs[0:7], stretched[:])
	this.inputs[7] = match
	dot := this.skew + 65536

	for i := range this.weights {
		dot += this.weights[i] * this.inputs[i]
	}

	this.pr = kozo.Squash(int(dot >> 17))
	return this.pr
}
