package physics

import "math"

// Vec3 is a 3D vector. The physics package keeps its own math types so it doesn't depend on the scene graph.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Add(other Vec3) Vec3  { return Vec3{v.X + other.X, v.Y + other.Y, v.Z + other.Z} }
func (v Vec3) Sub(other Vec3) Vec3  { return Vec3{v.X - other.X, v.Y - other.Y, v.Z - other.Z} }
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

func (v Vec3) Cross(other Vec3) Vec3 {
	return Vec3{
		v.Y*other.Z - v.Z*other.Y,
		v.Z*other.X - v.X*other.Z,
		v.X*other.Y - v.Y*other.X,
	}
}

func (v Vec3) LengthSquared() float64 { return v.Dot(v) }
func (v Vec3) Length() float64        { return math.Sqrt(v.Dot(v)) }

// Normalized returns the unit vector of v, or the zero vector if v is (nearly) zero.
func (v Vec3) Normalized() Vec3 {
	length := v.Length()
	if length < 1e-12 {
		return Vec3{}
	}
	return v.Scale(1 / length)
}

func (v Vec3) Abs() Vec3 { return Vec3{math.Abs(v.X), math.Abs(v.Y), math.Abs(v.Z)} }

func (v Vec3) Min(other Vec3) Vec3 {
	return Vec3{math.Min(v.X, other.X), math.Min(v.Y, other.Y), math.Min(v.Z, other.Z)}
}

func (v Vec3) Max(other Vec3) Vec3 {
	return Vec3{math.Max(v.X, other.X), math.Max(v.Y, other.Y), math.Max(v.Z, other.Z)}
}

// Quat is a rotation quaternion.
type Quat struct {
	X, Y, Z, W float64
}

// IdentityQuat returns the quaternion of no rotation.
func IdentityQuat() Quat { return Quat{W: 1} }

// isZero reports whether q is the zero value, which bodies treat as the identity.
func (q Quat) isZero() bool { return q == Quat{} }

func (q Quat) Mul(other Quat) Quat {
	return Quat{
		X: q.W*other.X + q.X*other.W + q.Y*other.Z - q.Z*other.Y,
		Y: q.W*other.Y - q.X*other.Z + q.Y*other.W + q.Z*other.X,
		Z: q.W*other.Z + q.X*other.Y - q.Y*other.X + q.Z*other.W,
		W: q.W*other.W - q.X*other.X - q.Y*other.Y - q.Z*other.Z,
	}
}

func (q Quat) Normalized() Quat {
	length := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	if length < 1e-12 {
		return IdentityQuat()
	}
	return Quat{q.X / length, q.Y / length, q.Z / length, q.W / length}
}

func (q Quat) Conjugate() Quat { return Quat{-q.X, -q.Y, -q.Z, q.W} }

// Rotate rotates v by q.
func (q Quat) Rotate(v Vec3) Vec3 {
	u := Vec3{q.X, q.Y, q.Z}
	t := u.Cross(v).Scale(2)
	return v.Add(t.Scale(q.W)).Add(u.Cross(t))
}

// integrate advances q by the angular velocity over dt.
func (q Quat) integrate(angularVelocity Vec3, dt float64) Quat {
	if angularVelocity.LengthSquared() == 0 {
		return q
	}
	spin := Quat{angularVelocity.X, angularVelocity.Y, angularVelocity.Z, 0}.Mul(q)
	return Quat{
		q.X + spin.X*0.5*dt,
		q.Y + spin.Y*0.5*dt,
		q.Z + spin.Z*0.5*dt,
		q.W + spin.W*0.5*dt,
	}.Normalized()
}

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min, Max Vec3
}

func (box AABB) Overlaps(other AABB) bool {
	return box.Min.X <= other.Max.X && box.Max.X >= other.Min.X &&
		box.Min.Y <= other.Max.Y && box.Max.Y >= other.Min.Y &&
		box.Min.Z <= other.Max.Z && box.Max.Z >= other.Min.Z
}

func (box AABB) Union(other AABB) AABB {
	return AABB{Min: box.Min.Min(other.Min), Max: box.Max.Max(other.Max)}
}

func (box AABB) Center() Vec3 { return box.Min.Add(box.Max).Scale(0.5) }

// closestPointOnSegment returns the point of the segment from start to end that's closest to point.
func closestPointOnSegment(start, end, point Vec3) Vec3 {
	ab := end.Sub(start)
	denominator := ab.Dot(ab)
	if denominator < 1e-12 {
		return start
	}
	t := point.Sub(start).Dot(ab) / denominator
	return start.Add(ab.Scale(clamp(t, 0, 1)))
}

// closestPointsBetweenSegments returns the closest points of the segments p1-q1 and p2-q2.
func closestPointsBetweenSegments(p1, q1, p2, q2 Vec3) (Vec3, Vec3) {
	const eps = 1e-12

	d1 := q1.Sub(p1)
	d2 := q2.Sub(p2)
	r := p1.Sub(p2)
	a := d1.Dot(d1)
	e := d2.Dot(d2)
	f := d2.Dot(r)

	var s, t float64

	switch {
	case a <= eps && e <= eps:
		return p1, p2
	case a <= eps:
		t = clamp(f/e, 0, 1)
	default:
		c := d1.Dot(r)
		if e <= eps {
			s = clamp(-c/a, 0, 1)
		} else {
			b := d1.Dot(d2)
			denominator := a*e - b*b
			if denominator != 0 {
				s = clamp((b*f-c*e)/denominator, 0, 1)
			}
			t = (b*s + f) / e
			if t < 0 {
				t = 0
				s = clamp(-c/a, 0, 1)
			} else if t > 1 {
				t = 1
				s = clamp((b-c)/a, 0, 1)
			}
		}
	}

	return p1.Add(d1.Scale(s)), p2.Add(d2.Scale(t))
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
