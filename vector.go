package stage3d

import (
	"math"
	"strconv"
)

// WorldRight, WorldUp and WorldBackward are the unit axes of the right-handed world coordinate system.
var (
	WorldRight    = NewVector(1, 0, 0)
	WorldUp       = NewVector(0, 1, 0)
	WorldBackward = NewVector(0, 0, 1)
)

// Vector represents a 3D Vector (location, direction, velocity, scale).
// Any Vector functions that modify the calling Vector return copies of the modified Vector, meaning you can do method-chaining easily.
type Vector struct {
	X float64 `toml:"x"`
	Y float64 `toml:"y"`
	Z float64 `toml:"z"`
}

// NewVector creates a new Vector with the specified x, y and z components.
func NewVector(x, y, z float64) Vector {
	return Vector{X: x, Y: y, Z: z}
}

// NewVectorOne returns a Vector with all components set to 1 (the identity scale).
func NewVectorOne() Vector {
	return Vector{1, 1, 1}
}

// Add returns a copy of the calling vector, added together with the other Vector provided.
func (vec Vector) Add(other Vector) Vector {
	vec.X += other.X
	vec.Y += other.Y
	vec.Z += other.Z
	return vec
}

// Sub returns a copy of the calling Vector, with the other Vector subtracted from it.
func (vec Vector) Sub(other Vector) Vector {
	vec.X -= other.X
	vec.Y -= other.Y
	vec.Z -= other.Z
	return vec
}

// Cross returns a new Vector, indicating the cross product of the calling Vector and the provided Other Vector.
func (vec Vector) Cross(other Vector) Vector {
	return Vector{
		X: vec.Y*other.Z - other.Y*vec.Z,
		Y: vec.Z*other.X - other.Z*vec.X,
		Z: vec.X*other.Y - other.X*vec.Y,
	}
}

// Invert returns the Vector pointing the other way.
func (vec Vector) Invert() Vector {
	return Vector{-vec.X, -vec.Y, -vec.Z}
}

// Magnitude returns the length of the Vector.
func (vec Vector) Magnitude() float64 {
	return math.Sqrt(vec.X*vec.X + vec.Y*vec.Y + vec.Z*vec.Z)
}

// MagnitudeSquared returns the squared length of the Vector; this is faster than Magnitude() as it avoids using math.Sqrt().
func (vec Vector) MagnitudeSquared() float64 {
	return vec.X*vec.X + vec.Y*vec.Y + vec.Z*vec.Z
}

func (vec Vector) Distance(other Vector) float64 {
	return vec.Sub(other).Magnitude()
}

// MultComp multiplies the Vectors component-wise.
func (vec Vector) MultComp(other Vector) Vector {
	vec.X *= other.X
	vec.Y *= other.Y
	vec.Z *= other.Z
	return vec
}

// DivComp divides the Vectors component-wise. Zero components of other leave the matching component unchanged.
func (vec Vector) DivComp(other Vector) Vector {
	if other.X != 0 {
		vec.X /= other.X
	}
	if other.Y != 0 {
		vec.Y /= other.Y
	}
	if other.Z != 0 {
		vec.Z /= other.Z
	}
	return vec
}

// Unit returns a copy of the Vector, normalized (set to be of unit length). A zero Vector is returned unchanged.
func (vec Vector) Unit() Vector {
	l := vec.Magnitude()
	if l < 1e-8 {
		return vec
	}
	vec.X, vec.Y, vec.Z = vec.X/l, vec.Y/l, vec.Z/l
	return vec
}

// Scale scales a Vector by the given scalar.
func (vec Vector) Scale(scalar float64) Vector {
	vec.X *= scalar
	vec.Y *= scalar
	vec.Z *= scalar
	return vec
}

// Dot returns the dot product of a Vector and another Vector.
func (vec Vector) Dot(other Vector) float64 {
	return vec.X*other.X + vec.Y*other.Y + vec.Z*other.Z
}

// Lerp returns the Vector linearly interpolated towards other by percent (0 to 1).
func (vec Vector) Lerp(other Vector, percent float64) Vector {
	return vec.Add(other.Sub(vec).Scale(percent))
}

// Equals returns true if the two Vectors are close enough in all values.
func (vec Vector) Equals(other Vector) bool {
	eps := 1e-8
	return math.Abs(vec.X-other.X) <= eps && math.Abs(vec.Y-other.Y) <= eps && math.Abs(vec.Z-other.Z) <= eps
}

// IsZero returns true if the values in the Vector are extremely close to 0.
func (vec Vector) IsZero() bool {
	return vec.Equals(Vector{})
}

func (vec Vector) String() string {
	return "{" + strconv.FormatFloat(vec.X, 'f', -1, 64) + ", " + strconv.FormatFloat(vec.Y, 'f', -1, 64) + ", " + strconv.FormatFloat(vec.Z, 'f', -1, 64) + "}"
}
