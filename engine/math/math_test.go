package math

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tolerance = 1e-4

func TestTransformDecomposeRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		position Vec3
		rotation Quaternion
		scale    Vec3
	}{
		{"identity", NewVec3Zero(), NewQuatIdentity(), NewVec3One()},
		{"yaw", NewVec3(1, -2, 3), NewQuatFromAxisAngle(NewVec3(0, 1, 0), K_PI/3), NewVec3(2, 3, 4)},
		{"euler", NewVec3(-7, 0.5, 12), NewQuatFromEuler(0.3, -1.1, 2.4), NewVec3(0.5, 1, 7)},
		{"oblique axis", NewVec3(0, 0, -4), NewQuatFromAxisAngle(NewVec3(1, 1, -1).Normalized(), 2.5), NewVec3(1, 1, 1)},
		{"tiny scale", NewVec3(3, 3, 3), NewQuatFromEuler(0.7, 0.2, -0.4), NewVec3(1e-3, 2e-3, 5e-4)},
		{"mirrored x", NewVec3(1, 2, 3), NewQuatFromEuler(-0.6, 0.4, 0.9), NewVec3(-2, 1, 3)},
		{"mirrored tiny", NewVec3Zero(), NewQuatFromAxisAngle(NewVec3(0, 0, 1), K_PI/4), NewVec3(-1e-3, 1e-3, 1e-3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := TransformFromPositionRotationScale(tt.position, tt.rotation, tt.scale)

			out, ok := TransformFromMat4(in.Matrix())
			require.True(t, ok)
			assert.True(t, in.Position.Compare(out.Position, tolerance), "position %v", out.Position)
			// tiny scales need a relative check
			assert.InEpsilon(t, in.Scale.X, out.Scale.X, 1e-3, "scale %v", out.Scale)
			assert.InEpsilon(t, in.Scale.Y, out.Scale.Y, 1e-3, "scale %v", out.Scale)
			assert.InEpsilon(t, in.Scale.Z, out.Scale.Z, 1e-3, "scale %v", out.Scale)
			assert.True(t, in.Rotation.SameRotation(out.Rotation, tolerance), "rotation %v", out.Rotation)
			assert.True(t, in.Matrix().Compare(out.Matrix(), tolerance), "matrix")
		})
	}

	_, ok := TransformFromMat4(NewMat4Scale(NewVec3(1, 0, 1)))
	assert.False(t, ok)
}

func TestTransformApplyParent(t *testing.T) {
	parent := TransformFromPosition(NewVec3(10, 0, 0))
	parent.Rotation = NewQuatFromAxisAngle(NewVec3(0, 1, 0), K_PI/2)
	child := TransformFromPosition(NewVec3(0, 0, 1))

	world := child.Apply(parent)
	// +Z rotated a quarter turn around Y lands on +X.
	assert.True(t, world.Position.Compare(NewVec3(11, 0, 0), tolerance), "got %v", world.Position)
	assert.True(t, world.Rotation.SameRotation(parent.Rotation, tolerance))
}

func TestMatrixInverse(t *testing.T) {
	m := TransformFromPositionRotationScale(
		NewVec3(4, 5, 6),
		NewQuatFromEuler(0.3, 0.2, 0.1),
		NewVec3(1, 2, 0.5),
	).Matrix()

	inv, ok := m.Inverse()
	require.True(t, ok)
	assert.True(t, m.Mul(inv).Compare(NewMat4Identity(), tolerance))

	_, ok = Mat4{}.Inverse()
	assert.False(t, ok)
}

func TestPerspectiveFlipsY(t *testing.T) {
	near, far := float32(0.1), float32(100)
	fov := DegToRad(90)
	p := NewMat4Perspective(fov, 2, near, far)

	assert.InDelta(t, 0.5, p.At(0, 0), tolerance)
	assert.InDelta(t, -1, p.At(1, 1), tolerance)
	assert.InDelta(t, far/(near-far), p.At(2, 2), tolerance)
	assert.InDelta(t, -1, p.At(2, 3), tolerance)
	assert.InDelta(t, near*far/(near-far), p.At(3, 2), tolerance)
	assert.Zero(t, p.At(3, 3))

	// The near plane maps to depth 0 and the far plane to depth 1.
	clip := func(z float32) float32 {
		v := NewVec3(0, 0, -z)
		zc := v.Z*p.At(2, 2) + p.At(3, 2)
		wc := v.Z * p.At(2, 3)
		return zc / wc
	}
	assert.InDelta(t, 0, clip(near), tolerance)
	assert.InDelta(t, 1, clip(far), tolerance)
}

func TestLookToMovesEyeToOrigin(t *testing.T) {
	eye := NewVec3(0, 2, 5)
	view := NewMat4LookAt(eye, NewVec3Zero(), NewVec3Up())

	assert.True(t, eye.Transform(view).Compare(NewVec3Zero(), tolerance))
	// The target sits straight ahead on -Z in view space.
	target := NewVec3Zero().Transform(view)
	assert.InDelta(t, 0, target.X, tolerance)
	assert.InDelta(t, 0, target.Y, tolerance)
	assert.InDelta(t, -eye.Length(), target.Z, tolerance)
}

func TestQuaternionRotateMatchesMatrix(t *testing.T) {
	q := NewQuatFromEuler(0.7, -0.4, 1.1)
	v := NewVec3(1, 2, 3)

	assert.True(t, q.Rotate(v).Compare(v.Transform(q.ToMat4()), tolerance))

	a := NewQuatFromAxisAngle(NewVec3(0, 0, 1), K_PI/2)
	b := NewQuatFromAxisAngle(NewVec3(1, 0, 0), K_PI/2)
	combined := a.Mul(b)
	assert.True(t, combined.Rotate(v).Compare(b.Rotate(a.Rotate(v)), tolerance))
	assert.InDelta(t, 1, combined.Normal(), tolerance)
}

func TestClampAndAngles(t *testing.T) {
	assert.Equal(t, 5, Clamp(10, 0, 5))
	assert.Equal(t, float32(0), Clamp(float32(-1), 0, 1))
	assert.InDelta(t, math32.Pi, DegToRad(180), tolerance)
	assert.InDelta(t, 90, RadToDeg(K_PI/2), tolerance)
}
