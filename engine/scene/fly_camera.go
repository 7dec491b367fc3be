package scene

import (
	"github.com/spaghettifunk/abyss/engine/math"
)

// pitchLimit is 89 degrees, short of straight up to avoid gimbal lock.
const pitchLimit float32 = 1.55334306

/**
 * @brief FlyCamera steers the Transform of the entity it is attached to with
 * yaw and pitch angles in radians. Pitch is clamped to +/- 89 degrees.
 */
type FlyCamera struct {
	YawAngle   float32
	PitchAngle float32
	Speed      float32
}

func NewFlyCamera(speed float32) FlyCamera {
	return FlyCamera{Speed: speed}
}

func (c *FlyCamera) Yaw(amount float32) {
	c.YawAngle += amount
}

// Pitch tilts the camera. Positive amounts look up.
func (c *FlyCamera) Pitch(amount float32) {
	c.PitchAngle = math.Clamp(c.PitchAngle+amount, -pitchLimit, pitchLimit)
}

// Orientation pitches around the local right axis, then yaws around world up.
func (c *FlyCamera) Orientation() math.Quaternion {
	pitch := math.NewQuatFromAxisAngle(math.NewVec3Right(), -c.PitchAngle)
	yaw := math.NewQuatFromAxisAngle(math.NewVec3Up(), c.YawAngle)
	return pitch.Mul(yaw)
}

// Apply writes the orientation into t and moves it along the camera axes.
// forward, right and up are in units of Speed, scaled by dt.
func (c *FlyCamera) Apply(t *Transform, forward, right, up, dt float32) {
	t.Rotation = c.Orientation()
	step := c.Speed * dt
	move := t.Rotation.Rotate(math.NewVec3Forward()).MulScalar(forward * step)
	move = move.Add(t.Rotation.Rotate(math.NewVec3Right()).MulScalar(right * step))
	move = move.Add(math.NewVec3Up().MulScalar(up * step))
	t.Position = t.Position.Add(move)
}
