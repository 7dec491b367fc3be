package math

/**
 * @brief Represents the local transform of an object: a position, an
 * orientation and a per-axis scale. Composed as scale, then rotation,
 * then translation.
 */
type Transform struct {
	Position Vec3
	Rotation Quaternion
	Scale    Vec3
}

func NewTransform() Transform {
	return Transform{
		Position: NewVec3Zero(),
		Rotation: NewQuatIdentity(),
		Scale:    NewVec3One(),
	}
}

func TransformFromPosition(position Vec3) Transform {
	t := NewTransform()
	t.Position = position
	return t
}

func TransformFromPositionRotationScale(position Vec3, rotation Quaternion, scale Vec3) Transform {
	return Transform{Position: position, Rotation: rotation, Scale: scale}
}

// TransformFromMat4 decomposes m. A degenerate scale yields false.
func TransformFromMat4(m Mat4) (Transform, bool) {
	s, r, p, ok := m.Decompose()
	return Transform{Position: p, Rotation: r, Scale: s}, ok
}

// Matrix returns S * R * T.
func (t Transform) Matrix() Mat4 {
	s := NewMat4Scale(t.Scale)
	r := t.Rotation.ToMat4()
	tr := NewMat4Translation(t.Position)
	return s.Mul(r.Mul(tr))
}

// Apply places t in the space of parent, returning the composed transform.
func (t Transform) Apply(parent Transform) Transform {
	out, ok := TransformFromMat4(t.Matrix().Mul(parent.Matrix()))
	if !ok {
		// Degenerate scale in the chain: keep the translation, drop the rest.
		out.Rotation = NewQuatIdentity()
	}
	return out
}

func (t *Transform) Translate(translation Vec3) {
	t.Position = t.Position.Add(translation)
}

func (t *Transform) Rotate(rotation Quaternion) {
	t.Rotation = t.Rotation.Mul(rotation).Normalize()
}

// Forward is the +Z axis rotated by the transform's orientation.
func (t Transform) Forward() Vec3 {
	return t.Rotation.Rotate(NewVec3Forward())
}
