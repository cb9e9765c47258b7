package core

import "math"

// Local body axes. Orientation quaternions rotate these into world space.
var (
	AxisRight   = Vec3{X: 1}
	AxisUp      = Vec3{Y: 1}
	AxisForward = Vec3{Z: 1}
)

// Vec3 is a world-space vector in metres (or metres/second for velocities).
type Vec3 struct {
	X, Y, Z float64
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Cross returns the right-handed cross product v × other.
func (v Vec3) Cross(other Vec3) Vec3 {
	return Vec3{
		X: v.Y*other.Z - v.Z*other.Y,
		Y: v.Z*other.X - v.X*other.Z,
		Z: v.X*other.Y - v.Y*other.X,
	}
}

// Normalize returns the unit vector along v, or the zero vector when v has
// no length.
func (v Vec3) Normalize() Vec3 {
	n := v.Norm()
	if n == 0 {
		return Vec3{}
	}
	return v.Scale(1 / n)
}

// IsZero reports whether all components are zero.
func (v Vec3) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// ProjectOnPlane removes the component of v along the plane normal n.
// n does not need to be normalised.
func (v Vec3) ProjectOnPlane(n Vec3) Vec3 {
	nn := n.Dot(n)
	if nn == 0 {
		return v
	}
	return v.Sub(n.Scale(v.Dot(n) / nn))
}

// SignedAngle returns the angle in degrees that rotates from onto to about
// axis, in (-180, 180]. Both vectors are projected onto the plane normal to
// axis first, so only the rotation about that axis is measured. Degenerate
// projections yield 0.
func SignedAngle(from, to, axis Vec3) float64 {
	a := from.ProjectOnPlane(axis)
	b := to.ProjectOnPlane(axis)
	if a.IsZero() || b.IsZero() {
		return 0
	}
	sin := axis.Normalize().Dot(a.Cross(b))
	cos := a.Dot(b)
	return math.Atan2(sin, cos) * 180.0 / math.Pi
}

// Quat is a unit quaternion describing a body orientation.
type Quat struct {
	W, X, Y, Z float64
}

// IdentityQuat is the orientation whose axes coincide with the world axes.
var IdentityQuat = Quat{W: 1}

// Mul returns the Hamilton product q * r (apply r, then q).
func (q Quat) Mul(r Quat) Quat {
	return Quat{
		W: q.W*r.W - q.X*r.X - q.Y*r.Y - q.Z*r.Z,
		X: q.W*r.X + q.X*r.W + q.Y*r.Z - q.Z*r.Y,
		Y: q.W*r.Y - q.X*r.Z + q.Y*r.W + q.Z*r.X,
		Z: q.W*r.Z + q.X*r.Y - q.Y*r.X + q.Z*r.W,
	}
}

// Normalize rescales q to unit length. A zero quaternion becomes identity.
func (q Quat) Normalize() Quat {
	n := math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	if n == 0 {
		return IdentityQuat
	}
	return Quat{W: q.W / n, X: q.X / n, Y: q.Y / n, Z: q.Z / n}
}

// Rotate applies the rotation q to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	u := Vec3{X: q.X, Y: q.Y, Z: q.Z}
	t := u.Cross(v).Scale(2)
	return v.Add(t.Scale(q.W)).Add(u.Cross(t))
}

// Forward, Right and Up return the body axes in world space.
func (q Quat) Forward() Vec3 { return q.Rotate(AxisForward) }
func (q Quat) Right() Vec3   { return q.Rotate(AxisRight) }
func (q Quat) Up() Vec3      { return q.Rotate(AxisUp) }

// QuatFromAxisAngle builds a rotation of angle radians about axis.
func QuatFromAxisAngle(axis Vec3, angle float64) Quat {
	a := axis.Normalize()
	if a.IsZero() {
		return IdentityQuat
	}
	s := math.Sin(angle / 2)
	return Quat{W: math.Cos(angle / 2), X: a.X * s, Y: a.Y * s, Z: a.Z * s}
}

// LookRotation returns the orientation whose forward axis points along dir
// and whose up axis is as close to worldUp as possible. When dir is parallel
// to worldUp another reference axis is used.
func LookRotation(dir, worldUp Vec3) Quat {
	f := dir.Normalize()
	if f.IsZero() {
		return IdentityQuat
	}
	r := worldUp.Cross(f)
	if r.Norm() < 1e-9 {
		r = AxisForward.Cross(f)
		if r.Norm() < 1e-9 {
			r = AxisRight
		}
	}
	r = r.Normalize()
	u := f.Cross(r)

	// Rotation matrix columns are the body axes (right, up, forward).
	m00, m01, m02 := r.X, u.X, f.X
	m10, m11, m12 := r.Y, u.Y, f.Y
	m20, m21, m22 := r.Z, u.Z, f.Z

	trace := m00 + m11 + m22
	var q Quat
	switch {
	case trace > 0:
		s := math.Sqrt(trace+1) * 2
		q = Quat{W: s / 4, X: (m21 - m12) / s, Y: (m02 - m20) / s, Z: (m10 - m01) / s}
	case m00 > m11 && m00 > m22:
		s := math.Sqrt(1+m00-m11-m22) * 2
		q = Quat{W: (m21 - m12) / s, X: s / 4, Y: (m01 + m10) / s, Z: (m02 + m20) / s}
	case m11 > m22:
		s := math.Sqrt(1+m11-m00-m22) * 2
		q = Quat{W: (m02 - m20) / s, X: (m01 + m10) / s, Y: s / 4, Z: (m12 + m21) / s}
	default:
		s := math.Sqrt(1+m22-m00-m11) * 2
		q = Quat{W: (m10 - m01) / s, X: (m02 + m20) / s, Y: (m12 + m21) / s, Z: s / 4}
	}
	return q.Normalize()
}

// Integrate advances q by angular velocity omega (world frame, rad/s) over dt
// seconds.
func (q Quat) Integrate(omega Vec3, dt float64) Quat {
	angle := omega.Norm() * dt
	if angle == 0 {
		return q
	}
	return QuatFromAxisAngle(omega, angle).Mul(q).Normalize()
}
