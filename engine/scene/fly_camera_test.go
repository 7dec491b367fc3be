package scene

import (
	stdmath "math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/abyss/engine/math"
)

func TestFlyCameraPitchIsClamped(t *testing.T) {
	c := NewFlyCamera(1)
	c.Pitch(10)
	assert.InDelta(t, pitchLimit, c.PitchAngle, 1e-6)
	c.Pitch(-20)
	assert.InDelta(t, -pitchLimit, c.PitchAngle, 1e-6)
}

func TestFlyCameraOrientation(t *testing.T) {
	c := NewFlyCamera(1)
	c.Pitch(0.5)
	fwd := c.Orientation().Rotate(math.NewVec3Forward())
	assert.Greater(t, fwd.Y, float32(0), "positive pitch looks up")

	c = NewFlyCamera(1)
	c.Yaw(stdmath.Pi / 2)
	fwd = c.Orientation().Rotate(math.NewVec3Forward())
	assert.True(t, fwd.Compare(math.NewVec3(1, 0, 0), 1e-5), "%v", fwd)
}

func TestFlyCameraApplyMoves(t *testing.T) {
	c := NewFlyCamera(10)
	tr := math.NewTransform()

	c.Apply(&tr, 1, 0, 0, 0.5)
	assert.True(t, tr.Position.Compare(math.NewVec3(0, 0, 5), 1e-5), "%v", tr.Position)

	c.Apply(&tr, 0, 0, -1, 0.1)
	assert.True(t, tr.Position.Compare(math.NewVec3(0, -1, 5), 1e-5), "%v", tr.Position)
}
