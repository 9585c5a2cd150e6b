package stage3d

import "math"

// Quaternion is a rotation. The zero value is not a valid rotation; use NewQuaternionIdentity.
type Quaternion struct {
	X float64 `toml:"x"`
	Y float64 `toml:"y"`
	Z float64 `toml:"z"`
	W float64 `toml:"w"`
}

func NewQuaternion(x, y, z, w float64) Quaternion {
	return Quaternion{x, y, z, w}
}

// NewQuaternionIdentity returns the rotation that doesn't rotate.
func NewQuaternionIdentity() Quaternion {
	return Quaternion{W: 1}
}

// NewQuaternionFromAxisAngle returns a rotation of angle radians around axis.
func NewQuaternionFromAxisAngle(axis Vector, angle float64) Quaternion {
	axis = axis.Unit()
	s := math.Sin(angle / 2)
	return Quaternion{axis.X * s, axis.Y * s, axis.Z * s, math.Cos(angle / 2)}
}

// NewQuaternionFromEuler returns a rotation from euler angles in radians, applied X, then Y, then Z.
func NewQuaternionFromEuler(euler Vector) Quaternion {
	qx := NewQuaternionFromAxisAngle(WorldRight, euler.X)
	qy := NewQuaternionFromAxisAngle(WorldUp, euler.Y)
	qz := NewQuaternionFromAxisAngle(WorldBackward, euler.Z)
	return qz.Mult(qy).Mult(qx)
}

// Mult returns the rotation of other followed by quat.
func (quat Quaternion) Mult(other Quaternion) Quaternion {
	return Quaternion{
		X: quat.W*other.X + quat.X*other.W + quat.Y*other.Z - quat.Z*other.Y,
		Y: quat.W*other.Y - quat.X*other.Z + quat.Y*other.W + quat.Z*other.X,
		Z: quat.W*other.Z + quat.X*other.Y - quat.Y*other.X + quat.Z*other.W,
		W: quat.W*other.W - quat.X*other.X - quat.Y*other.Y - quat.Z*other.Z,
	}
}

func (quat Quaternion) Dot(other Quaternion) float64 {
	return quat.X*other.X + quat.Y*other.Y + quat.Z*other.Z + quat.W*other.W
}

// Normalized returns the quaternion scaled to unit length. A zero quaternion becomes the identity.
func (quat Quaternion) Normalized() Quaternion {
	l := math.Sqrt(quat.Dot(quat))
	if l < 1e-12 {
		return NewQuaternionIdentity()
	}
	return Quaternion{quat.X / l, quat.Y / l, quat.Z / l, quat.W / l}
}

// Inverted returns the opposite rotation of a unit quaternion.
func (quat Quaternion) Inverted() Quaternion {
	return Quaternion{-quat.X, -quat.Y, -quat.Z, quat.W}
}

// Rotate returns vec rotated by the quaternion.
func (quat Quaternion) Rotate(vec Vector) Vector {
	u := Vector{quat.X, quat.Y, quat.Z}
	t := u.Cross(vec).Scale(2)
	return vec.Add(t.Scale(quat.W)).Add(u.Cross(t))
}

// Equals returns whether both quaternions describe (almost) the same rotation.
func (quat Quaternion) Equals(other Quaternion) bool {
	return math.Abs(math.Abs(quat.Normalized().Dot(other.Normalized()))-1) < 1e-6
}

// ToMatrix4 returns the rotation as a row-major rotation Matrix4.
func (quat Quaternion) ToMatrix4() Matrix4 {
	q := quat.Normalized()
	x, y, z, w := q.X, q.Y, q.Z, q.W

	mat := NewMatrix4()
	mat[0][0] = 1 - 2*(y*y+z*z)
	mat[0][1] = 2 * (x*y + z*w)
	mat[0][2] = 2 * (x*z - y*w)

	mat[1][0] = 2 * (x*y - z*w)
	mat[1][1] = 1 - 2*(x*x+z*z)
	mat[1][2] = 2 * (y*z + x*w)

	mat[2][0] = 2 * (x*z + y*w)
	mat[2][1] = 2 * (y*z - x*w)
	mat[2][2] = 1 - 2*(x*x+y*y)
	return mat
}

// Slerp spherically interpolates from quat towards other by percent (0 to 1).
func (quat Quaternion) Slerp(other Quaternion, percent float64) Quaternion {

	if percent <= 0 {
		return quat
	} else if percent >= 1 {
		return other
	}

	angle := quat.Dot(other)

	if angle < 0 {
		other = Quaternion{-other.X, -other.Y, -other.Z, -other.W}
		angle = -angle
	}

	if angle >= 1 {
		return quat
	}

	sinHalfTheta := math.Sqrt(1 - angle*angle)
	halfTheta := math.Atan2(sinHalfTheta, angle)

	if sinHalfTheta < 1e-6 {
		return Quaternion{
			quat.X*0.5 + other.X*0.5,
			quat.Y*0.5 + other.Y*0.5,
			quat.Z*0.5 + other.Z*0.5,
			quat.W*0.5 + other.W*0.5,
		}
	}

	ratioA := math.Sin((1-percent)*halfTheta) / sinHalfTheta
	ratioB := math.Sin(percent*halfTheta) / sinHalfTheta

	return Quaternion{
		X: quat.X*ratioA + other.X*ratioB,
		Y: quat.Y*ratioA + other.Y*ratioB,
		Z: quat.Z*ratioA + other.Z*ratioB,
		W: quat.W*ratioA + other.W*ratioB,
	}

}
