package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// AllFinite reports whether data holds no NaN or ±Inf
func AllFinite(data []float64) bool {
	if floats.HasNaN(data) {
		return false
	}
	for _, v := range data {
		if math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ColumnMeans averages each column of a row-major matrix. Rows shorter than
// columns are an error for the caller to prevent; they are treated as zero.
func ColumnMeans(rows [][]float64, columns int) []float64 {
	means := make([]float64, columns)
	if len(rows) == 0 {
		return means
	}

	column := make([]float64, len(rows))
	for c := range columns {
		for r, row := range rows {
			column[r] = 0
			if c < len(row) {
				column[r] = row[c]
			}
		}
		means[c] = stat.Mean(column, nil)
	}
	return means
}

// RMS calculates root mean square
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return math.Sqrt(floats.Dot(data, data) / float64(len(data)))
}

// Clamp constrains a value to a range
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// MaxNormalize scales data in place so its largest value is 1. All-zero or
// negative-peaked data is left untouched.
func MaxNormalize(data []float64) {
	if len(data) == 0 {
		return
	}
	peak := floats.Max(data)
	if peak <= 0 {
		return
	}
	floats.Scale(1/peak, data)
}
