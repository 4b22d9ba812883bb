package thermometer

import (
	"encoding/binary"
	"math"
)

// SampleSize is the wire size of one temperature sample.
const SampleSize = 8

// EncodeSample encodes celsius as a big-endian IEEE-754 double.
func EncodeSample(celsius float64) [SampleSize]byte {
	var b [SampleSize]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(celsius))
	return b
}

// DecodeSample decodes a big-endian IEEE-754 double.
func DecodeSample(b [SampleSize]byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(b[:]))
}
