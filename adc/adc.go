// Package adc implements the node's battery ADC on the supported boards.
//
// Whatever the converter, readings are scaled to 10 bit codes so that the
// frame always carries the same battery byte.
package adc

import (
	"errors"

	"github.com/chewxy/math32"
)

var ErrPkg = errors.New("adc")

// MaxCode is the top of the 10 bit scale.
const MaxCode = 1023

// ToCode maps v onto 0..MaxCode where fullScale maps to MaxCode. Values
// outside the range are clamped.
func ToCode(v, fullScale float32) uint16 {
	if v <= 0 || fullScale <= 0 {
		return 0
	}
	c := math32.Round(v / fullScale * MaxCode)
	if c >= MaxCode {
		return MaxCode
	}
	return uint16(c)
}
