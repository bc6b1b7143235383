package util

import "math"

// Round1 保留一位小数（用于展示）
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
