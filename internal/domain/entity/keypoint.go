package entity

import "math/bits"

// DescriptorBits длина бинарного дескриптора
const DescriptorBits = 256

// Descriptor бинарный дескриптор ключевой точки (256 бит)
type Descriptor [DescriptorBits / 64]uint64

// SetBit выставляет бит i
func (d *Descriptor) SetBit(i int) {
	d[i/64] |= 1 << uint(i%64)
}

// Bit возвращает бит i
func (d *Descriptor) Bit(i int) bool {
	return d[i/64]&(1<<uint(i%64)) != 0
}

// Hamming расстояние Хэмминга между дескрипторами
func (d Descriptor) Hamming(other Descriptor) int {
	n := 0
	for i := range d {
		n += bits.OnesCount64(d[i] ^ other[i])
	}
	return n
}

// Keypoint ключевая точка в координатах нормализованного холста
type Keypoint struct {
	X, Y       float64
	Angle      float64 // градусы, [0, 360)
	Size       float64
	Response   float64
	Octave     int
	Descriptor Descriptor
}

// Match соответствие точки QueryIdx из A точке TrainIdx из B
type Match struct {
	QueryIdx int
	TrainIdx int
	Distance int
}

// MatchSet ключевые точки обоих изображений и отобранные соответствия.
// Matches отсортированы по возрастанию расстояния.
type MatchSet struct {
	KeypointsA []Keypoint
	KeypointsB []Keypoint
	Matches    []Match
}
