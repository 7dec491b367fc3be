package math

import "github.com/chewxy/math32"

/**
 * @brief a 4x4 matrix, typically used to represent object transformations.
 * Row-major, multiplied with row vectors: p' = p * M. Translation lives in
 * Data[12..14], and M1.Mul(M2) applies M1 first.
 */
type Mat4 struct {
	/** @brief The matrix elements */
	Data [16]float32
}

func NewMat4Identity() Mat4 {
	return Mat4{Data: [16]float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}}
}

func (mt Mat4) At(row, col int) float32 {
	return mt.Data[row*4+col]
}

func (mt Mat4) Mul(other Mat4) Mat4 {
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += mt.Data[r*4+k] * other.Data[k*4+c]
			}
			out.Data[r*4+c] = sum
		}
	}
	return out
}

func (mt Mat4) Transposed() Mat4 {
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out.Data[c*4+r] = mt.Data[r*4+c]
		}
	}
	return out
}

func (mt Mat4) Compare(other Mat4, tolerance float32) bool {
	for i := range mt.Data {
		if !NearlyEqual(mt.Data[i], other.Data[i], tolerance) {
			return false
		}
	}
	return true
}

// Inverse returns the inverse and false when the matrix is singular.
func (mt Mat4) Inverse() (Mat4, bool) {
	m := &mt.Data
	var inv [16]float32

	inv[0] = m[5]*m[10]*m[15] - m[5]*m[11]*m[14] - m[9]*m[6]*m[15] + m[9]*m[7]*m[14] + m[13]*m[6]*m[11] - m[13]*m[7]*m[10]
	inv[4] = -m[4]*m[10]*m[15] + m[4]*m[11]*m[14] + m[8]*m[6]*m[15] - m[8]*m[7]*m[14] - m[12]*m[6]*m[11] + m[12]*m[7]*m[10]
	inv[8] = m[4]*m[9]*m[15] - m[4]*m[11]*m[13] - m[8]*m[5]*m[15] + m[8]*m[7]*m[13] + m[12]*m[5]*m[11] - m[12]*m[7]*m[9]
	inv[12] = -m[4]*m[9]*m[14] + m[4]*m[10]*m[13] + m[8]*m[5]*m[14] - m[8]*m[6]*m[13] - m[12]*m[5]*m[10] + m[12]*m[6]*m[9]
	inv[1] = -m[1]*m[10]*m[15] + m[1]*m[11]*m[14] + m[9]*m[2]*m[15] - m[9]*m[3]*m[14] - m[13]*m[2]*m[11] + m[13]*m[3]*m[10]
	inv[5] = m[0]*m[10]*m[15] - m[0]*m[11]*m[14] - m[8]*m[2]*m[15] + m[8]*m[3]*m[14] + m[12]*m[2]*m[11] - m[12]*m[3]*m[10]
	inv[9] = -m[0]*m[9]*m[15] + m[0]*m[11]*m[13] + m[8]*m[1]*m[15] - m[8]*m[3]*m[13] - m[12]*m[1]*m[11] + m[12]*m[3]*m[9]
	inv[13] = m[0]*m[9]*m[14] - m[0]*m[10]*m[13] - m[8]*m[1]*m[14] + m[8]*m[2]*m[13] + m[12]*m[1]*m[10] - m[12]*m[2]*m[9]
	inv[2] = m[1]*m[6]*m[15] - m[1]*m[7]*m[14] - m[5]*m[2]*m[15] + m[5]*m[3]*m[14] + m[13]*m[2]*m[7] - m[13]*m[3]*m[6]
	inv[6] = -m[0]*m[6]*m[15] + m[0]*m[7]*m[14] + m[4]*m[2]*m[15] - m[4]*m[3]*m[14] - m[12]*m[2]*m[7] + m[12]*m[3]*m[6]
	inv[10] = m[0]*m[5]*m[15] - m[0]*m[7]*m[13] - m[4]*m[1]*m[15] + m[4]*m[3]*m[13] + m[12]*m[1]*m[7] - m[12]*m[3]*m[5]
	inv[14] = -m[0]*m[5]*m[14] + m[0]*m[6]*m[13] + m[4]*m[1]*m[14] - m[4]*m[2]*m[13] - m[12]*m[1]*m[6] + m[12]*m[2]*m[5]
	inv[3] = -m[1]*m[6]*m[11] + m[1]*m[7]*m[10] + m[5]*m[2]*m[11] - m[5]*m[3]*m[10] - m[9]*m[2]*m[7] + m[9]*m[3]*m[6]
	inv[7] = m[0]*m[6]*m[11] - m[0]*m[7]*m[10] - m[4]*m[2]*m[11] + m[4]*m[3]*m[10] + m[8]*m[2]*m[7] - m[8]*m[3]*m[6]
	inv[11] = -m[0]*m[5]*m[11] + m[0]*m[7]*m[9] + m[4]*m[1]*m[11] - m[4]*m[3]*m[9] - m[8]*m[1]*m[7] + m[8]*m[3]*m[5]
	inv[15] = m[0]*m[5]*m[10] - m[0]*m[6]*m[9] - m[4]*m[1]*m[10] + m[4]*m[2]*m[9] + m[8]*m[1]*m[6] - m[8]*m[2]*m[5]

	det := m[0]*inv[0] + m[1]*inv[4] + m[2]*inv[8] + m[3]*inv[12]
	if math32.Abs(det) < 1e-12 {
		return NewMat4Identity(), false
	}

	det = 1.0 / det
	var out Mat4
	for i := range inv {
		out.Data[i] = inv[i] * det
	}
	return out, true
}

func NewMat4Translation(position Vec3) Mat4 {
	m := NewMat4Identity()
	m.Data[12] = position.X
	m.Data[13] = position.Y
	m.Data[14] = position.Z
	return m
}

func NewMat4Scale(scale Vec3) Mat4 {
	m := NewMat4Identity()
	m.Data[0] = scale.X
	m.Data[5] = scale.Y
	m.Data[10] = scale.Z
	return m
}

func (mt Mat4) Translation() Vec3 {
	return Vec3{mt.Data[12], mt.Data[13], mt.Data[14]}
}

/**
 * NewMat4Perspective creates a right-handed perspective projection with the
 * Y axis flipped for Vulkan clip space and depth mapped to [0, 1].
 */
func NewMat4Perspective(fovRadians, aspectRatio, nearClip, farClip float32) Mat4 {
	halfTanFov := math32.Tan(fovRadians * 0.5)

	var m Mat4
	m.Data[0] = 1.0 / (aspectRatio * halfTanFov)
	m.Data[5] = -(1.0 / halfTanFov)
	m.Data[10] = farClip / (nearClip - farClip)
	m.Data[11] = -1.0
	m.Data[14] = -(farClip * nearClip) / (farClip - nearClip)
	return m
}

// NewMat4LookTo builds a right-handed view matrix looking from position along direction.
func NewMat4LookTo(position, direction, up Vec3) Mat4 {
	zAxis := direction.Negate().Normalized()
	xAxis := up.Cross(zAxis).Normalized()
	yAxis := zAxis.Cross(xAxis)

	return Mat4{Data: [16]float32{
		xAxis.X, yAxis.X, zAxis.X, 0,
		xAxis.Y, yAxis.Y, zAxis.Y, 0,
		xAxis.Z, yAxis.Z, zAxis.Z, 0,
		-xAxis.Dot(position), -yAxis.Dot(position), -zAxis.Dot(position), 1,
	}}
}

func NewMat4LookAt(position, target, up Vec3) Mat4 {
	return NewMat4LookTo(position, target.Sub(position), up)
}

// Decompose splits an affine matrix into scale, rotation and translation.
// It returns false when a scale axis is degenerate.
func (mt Mat4) Decompose() (scale Vec3, rotation Quaternion, translation Vec3, ok bool) {
	translation = mt.Translation()

	rows := [3]Vec3{
		{mt.Data[0], mt.Data[1], mt.Data[2]},
		{mt.Data[4], mt.Data[5], mt.Data[6]},
		{mt.Data[8], mt.Data[9], mt.Data[10]},
	}
	scale = Vec3{rows[0].Length(), rows[1].Length(), rows[2].Length()}
	if scale.X < K_FLOAT_EPSILON || scale.Y < K_FLOAT_EPSILON || scale.Z < K_FLOAT_EPSILON {
		return scale, NewQuatIdentity(), translation, false
	}

	// A mirrored basis keeps one negative axis, put it on X.
	if rows[0].Cross(rows[1]).Dot(rows[2]) < 0 {
		scale.X = -scale.X
	}

	r := NewMat4Identity()
	for i, s := range [3]float32{scale.X, scale.Y, scale.Z} {
		row := rows[i].MulScalar(1 / s)
		r.Data[i*4+0] = row.X
		r.Data[i*4+1] = row.Y
		r.Data[i*4+2] = row.Z
	}
	rotation = NewQuatFromMat4(r).Normalize()
	return scale, rotation, translation, true
}
