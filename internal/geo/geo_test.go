package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	// One thousandth of a degree of latitude is about 111 m anywhere.
	d := Distance(51.0447, -114.0719, 51.0457, -114.0719)
	assert.InDelta(t, 111.2, d, 1.0)

	// Longitude shrinks with latitude.
	d = Distance(51.0447, -114.0719, 51.0447, -114.0709)
	assert.InDelta(t, 70.0, d, 1.5)

	assert.Zero(t, Distance(51.0447, -114.0719, 51.0447, -114.0719))
}

func TestWalkMinutes(t *testing.T) {
	assert.Equal(t, 1, WalkMinutes(79, 80))
	assert.Equal(t, 1, WalkMinutes(80, 80))
	assert.Equal(t, 2, WalkMinutes(81, 80))
	assert.Equal(t, 0, WalkMinutes(0, 80))
	assert.Equal(t, 0, WalkMinutes(100, 0))
}

func TestValidCoordinates(t *testing.T) {
	assert.True(t, ValidCoordinates(51.0447, -114.0719))
	assert.True(t, ValidCoordinates(-90, 180))
	assert.False(t, ValidCoordinates(91, 0))
	assert.False(t, ValidCoordinates(-91, 0))
	assert.False(t, ValidCoordinates(0, 181))
	assert.False(t, ValidCoordinates(0, -181))
}
