package math

import "github.com/chewxy/math32"

/** @brief A quaternion, used to represent rotational orientation. */
type Quaternion Vec4

func NewQuatIdentity() Quaternion {
	return Quaternion{0, 0, 0, 1}
}

// NewQuatFromAxisAngle builds a rotation of angle radians around axis.
func NewQuatFromAxisAngle(axis Vec3, angle float32) Quaternion {
	half := angle * 0.5
	s, c := math32.Sin(half), math32.Cos(half)
	a := axis.Normalized()
	return Quaternion{a.X * s, a.Y * s, a.Z * s, c}
}

// NewQuatFromEuler uses yaw (Y), pitch (X) and roll (Z) in radians.
func NewQuatFromEuler(yaw, pitch, roll float32) Quaternion {
	sr, cr := math32.Sin(roll*0.5), math32.Cos(roll*0.5)
	sp, cp := math32.Sin(pitch*0.5), math32.Cos(pitch*0.5)
	sy, cy := math32.Sin(yaw*0.5), math32.Cos(yaw*0.5)
	return Quaternion{
		X: cy*sp*cr + sy*cp*sr,
		Y: sy*cp*cr - cy*sp*sr,
		Z: cy*cp*sr - sy*sp*cr,
		W: cy*cp*cr + sy*sp*sr,
	}
}

func (q Quaternion) Normal() float32 {
	return math32.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
}

func (q Quaternion) Normalize() Quaternion {
	n := q.Normal()
	if n == 0 {
		return NewQuatIdentity()
	}
	return Quaternion{q.X / n, q.Y / n, q.Z / n, q.W / n}
}

func (q Quaternion) Conjugate() Quaternion {
	return Quaternion{-q.X, -q.Y, -q.Z, q.W}
}

func (q Quaternion) Dot(other Quaternion) float32 {
	return q.X*other.X + q.Y*other.Y + q.Z*other.Z + q.W*other.W
}

// Mul returns q followed by other when used with row vectors: v*(q.Mul(other)) rotates by q, then other.
func (q Quaternion) Mul(other Quaternion) Quaternion {
	// Hamilton product other*q.
	a, b := other, q
	return Quaternion{
		X: a.W*b.X + a.X*b.W + a.Y*b.Z - a.Z*b.Y,
		Y: a.W*b.Y - a.X*b.Z + a.Y*b.W + a.Z*b.X,
		Z: a.W*b.Z + a.X*b.Y - a.Y*b.X + a.Z*b.W,
		W: a.W*b.W - a.X*b.X - a.Y*b.Y - a.Z*b.Z,
	}
}

// Rotate applies the rotation to v.
func (q Quaternion) Rotate(v Vec3) Vec3 {
	u := Vec3{q.X, q.Y, q.Z}
	t := u.Cross(v).MulScalar(2)
	return v.Add(t.MulScalar(q.W)).Add(u.Cross(t))
}

// SameRotation compares two unit quaternions, treating q and -q as equal.
func (q Quaternion) SameRotation(other Quaternion, tolerance float32) bool {
	return math32.Abs(math32.Abs(q.Dot(other))-1) <= tolerance
}

// ToMat4 returns the rotation matrix for a unit quaternion.
func (q Quaternion) ToMat4() Mat4 {
	xx, yy, zz := q.X*q.X, q.Y*q.Y, q.Z*q.Z
	xy, xz, yz := q.X*q.Y, q.X*q.Z, q.Y*q.Z
	wx, wy, wz := q.W*q.X, q.W*q.Y, q.W*q.Z

	m := NewMat4Identity()
	m.Data[0] = 1 - 2*(yy+zz)
	m.Data[1] = 2 * (xy + wz)
	m.Data[2] = 2 * (xz - wy)

	m.Data[4] = 2 * (xy - wz)
	m.Data[5] = 1 - 2*(zz+xx)
	m.Data[6] = 2 * (yz + wx)

	m.Data[8] = 2 * (xz + wy)
	m.Data[9] = 2 * (yz - wx)
	m.Data[10] = 1 - 2*(yy+xx)
	return m
}

// NewQuatFromMat4 extracts the rotation of an orthonormal upper 3x3.
func NewQuatFromMat4(m Mat4) Quaternion {
	d := &m.Data
	m11, m12, m13 := d[0], d[1], d[2]
	m21, m22, m23 := d[4], d[5], d[6]
	m31, m32, m33 := d[8], d[9], d[10]

	var q Quaternion
	trace := m11 + m22 + m33
	switch {
	case trace > 0:
		s := math32.Sqrt(trace + 1)
		q.W = s * 0.5
		s = 0.5 / s
		q.X = (m23 - m32) * s
		q.Y = (m31 - m13) * s
		q.Z = (m12 - m21) * s
	case m11 >= m22 && m11 >= m33:
		s := math32.Sqrt(1 + m11 - m22 - m33)
		inv := 0.5 / s
		q.X = 0.5 * s
		q.Y = (m12 + m21) * inv
		q.Z = (m13 + m31) * inv
		q.W = (m23 - m32) * inv
	case m22 > m33:
		s := math32.Sqrt(1 + m22 - m11 - m33)
		inv := 0.5 / s
		q.X = (m21 + m12) * inv
		q.Y = 0.5 * s
		q.Z = (m32 + m23) * inv
		q.W = (m31 - m13) * inv
	default:
		s := math32.Sqrt(1 + m33 - m11 - m22)
		inv := 0.5 / s
		q.X = (m31 + m13) * inv
		q.Y = (m32 + m23) * inv
		q.Z = 0.5 * s
		q.W = (m12 - m21) * inv
	}
	return q
}
