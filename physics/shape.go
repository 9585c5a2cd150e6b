package physics

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidShape is returned when a body or character is created with a missing or degenerate shape.
var ErrInvalidShape = errors.New("physics: invalid shape")

// Shape is the collision geometry of a body, centered on the body's position.
type Shape interface {
	// Bounds returns the world-space bounding box of the shape placed at position with rotation.
	Bounds(position Vec3, rotation Quat) AABB
	// Validate returns an error wrapping ErrInvalidShape if the shape can't be simulated.
	Validate() error

	primitives(position Vec3, rotation Quat, out []primitive) []primitive
}

// Sphere is a sphere around the body's position.
type Sphere struct {
	Radius float64
}

func (sphere Sphere) Bounds(position Vec3, rotation Quat) AABB {
	r := Vec3{sphere.Radius, sphere.Radius, sphere.Radius}
	return AABB{Min: position.Sub(r), Max: position.Add(r)}
}

func (sphere Sphere) Validate() error {
	if !(sphere.Radius > 0) {
		return fmt.Errorf("%w: sphere radius %v", ErrInvalidShape, sphere.Radius)
	}
	return nil
}

func (sphere Sphere) primitives(position Vec3, rotation Quat, out []primitive) []primitive {
	return append(out, primitive{start: position, end: position, radius: sphere.Radius})
}

// Box is an oriented box; HalfExtents is half its size along each local axis.
type Box struct {
	HalfExtents Vec3
}

func (box Box) Bounds(position Vec3, rotation Quat) AABB {
	axes := rotationAxes(rotation)
	extent := Vec3{}
	for i, axis := range axes {
		extent = extent.Add(axis.Abs().Scale(box.halfExtent(i)))
	}
	return AABB{Min: position.Sub(extent), Max: position.Add(extent)}
}

func (box Box) Validate() error {
	if !(box.HalfExtents.X > 0 && box.HalfExtents.Y > 0 && box.HalfExtents.Z > 0) {
		return fmt.Errorf("%w: box half extents %v", ErrInvalidShape, box.HalfExtents)
	}
	return nil
}

func (box Box) halfExtent(axis int) float64 {
	switch axis {
	case 0:
		return box.HalfExtents.X
	case 1:
		return box.HalfExtents.Y
	}
	return box.HalfExtents.Z
}

func (box Box) primitives(position Vec3, rotation Quat, out []primitive) []primitive {
	return append(out, primitive{isBox: true, center: position, axes: rotationAxes(rotation), halfExtents: box.HalfExtents})
}

// Capsule is a cylinder with hemispherical caps along the local Y axis. HalfHeight is half the length of the
// cylinder part, so the full height is 2*(HalfHeight+Radius).
type Capsule struct {
	Radius     float64
	HalfHeight float64
}

func (capsule Capsule) Bounds(position Vec3, rotation Quat) AABB {
	up := rotation.Rotate(Vec3{Y: capsule.HalfHeight})
	r := Vec3{capsule.Radius, capsule.Radius, capsule.Radius}
	top, bottom := position.Add(up), position.Sub(up)
	return AABB{Min: top.Min(bottom).Sub(r), Max: top.Max(bottom).Add(r)}
}

func (capsule Capsule) Validate() error {
	if !(capsule.Radius > 0) || capsule.HalfHeight < 0 {
		return fmt.Errorf("%w: capsule radius %v, half height %v", ErrInvalidShape, capsule.Radius, capsule.HalfHeight)
	}
	return nil
}

func (capsule Capsule) primitives(position Vec3, rotation Quat, out []primitive) []primitive {
	up := rotation.Rotate(Vec3{Y: capsule.HalfHeight})
	return append(out, primitive{start: position.Sub(up), end: position.Add(up), radius: capsule.Radius})
}

// CompoundPart is one shape of a Compound, placed relative to the body.
type CompoundPart struct {
	Shape    Shape
	Position Vec3
	Rotation Quat
}

// Compound groups several shapes into one body.
type Compound struct {
	Parts []CompoundPart
}

func (compound Compound) Bounds(position Vec3, rotation Quat) AABB {
	var bounds AABB
	for i, part := range compound.Parts {
		partPosition, partRotation := compound.placePart(part, position, rotation)
		partBounds := part.Shape.Bounds(partPosition, partRotation)
		if i == 0 {
			bounds = partBounds
		} else {
			bounds = bounds.Union(partBounds)
		}
	}
	return bounds
}

func (compound Compound) Validate() error {
	if len(compound.Parts) == 0 {
		return fmt.Errorf("%w: compound without parts", ErrInvalidShape)
	}
	for i, part := range compound.Parts {
		if part.Shape == nil {
			return fmt.Errorf("%w: compound part %d has no shape", ErrInvalidShape, i)
		}
		if _, nested := part.Shape.(Compound); nested {
			return fmt.Errorf("%w: compound part %d is a compound", ErrInvalidShape, i)
		}
		if err := part.Shape.Validate(); err != nil {
			return fmt.Errorf("compound part %d: %w", i, err)
		}
	}
	return nil
}

func (compound Compound) primitives(position Vec3, rotation Quat, out []primitive) []primitive {
	for _, part := range compound.Parts {
		partPosition, partRotation := compound.placePart(part, position, rotation)
		out = part.Shape.primitives(partPosition, partRotation, out)
	}
	return out
}

func (compound Compound) placePart(part CompoundPart, position Vec3, rotation Quat) (Vec3, Quat) {
	partRotation := part.Rotation
	if partRotation.isZero() {
		partRotation = IdentityQuat()
	}
	return position.Add(rotation.Rotate(part.Position)), rotation.Mul(partRotation).Normalized()
}

func validateShape(shape Shape) error {
	if shape == nil {
		return fmt.Errorf("%w: no shape", ErrInvalidShape)
	}
	return shape.Validate()
}

// primitive is what shapes are broken down into for overlap tests: either a swept sphere (a sphere when start
// and end are equal, a capsule otherwise) or an oriented box.
type primitive struct {
	start, end Vec3
	radius     float64

	isBox       bool
	center      Vec3
	axes        [3]Vec3
	halfExtents Vec3
}

func (p primitive) halfExtent(axis int) float64 {
	return Box{HalfExtents: p.halfExtents}.halfExtent(axis)
}

func rotationAxes(rotation Quat) [3]Vec3 {
	if rotation.isZero() {
		rotation = IdentityQuat()
	}
	return [3]Vec3{
		rotation.Rotate(Vec3{X: 1}),
		rotation.Rotate(Vec3{Y: 1}),
		rotation.Rotate(Vec3{Z: 1}),
	}
}

func primitivesOverlap(a, b primitive) bool {
	switch {
	case a.isBox && b.isBox:
		return boxesOverlap(a, b)
	case a.isBox:
		return sweptSphereOverlapsBox(b, a)
	case b.isBox:
		return sweptSphereOverlapsBox(a, b)
	}
	pa, pb := closestPointsBetweenSegments(a.start, a.end, b.start, b.end)
	reach := a.radius + b.radius
	return pa.Sub(pb).LengthSquared() <= reach*reach
}

// closestPointOnBox returns the point of the box closest to point.
func closestPointOnBox(box primitive, point Vec3) Vec3 {
	d := point.Sub(box.center)
	closest := box.center
	for i, axis := range box.axes {
		extent := box.halfExtent(i)
		closest = closest.Add(axis.Scale(clamp(d.Dot(axis), -extent, extent)))
	}
	return closest
}

func sweptSphereOverlapsBox(sphere, box primitive) bool {
	// Alternating projections converge quickly for a segment against a convex box.
	onSegment := closestPointOnSegment(sphere.start, sphere.end, box.center)
	for i := 0; i < 4; i++ {
		onBox := closestPointOnBox(box, onSegment)
		next := closestPointOnSegment(sphere.start, sphere.end, onBox)
		if next.Sub(onSegment).LengthSquared() < 1e-12 {
			break
		}
		onSegment = next
	}
	onBox := closestPointOnBox(box, onSegment)
	return onBox.Sub(onSegment).LengthSquared() <= sphere.radius*sphere.radius
}

// boxesOverlap is a separating axis test between two oriented boxes.
func boxesOverlap(a, b primitive) bool {
	const eps = 1e-9

	distance := b.center.Sub(a.center)

	axes := make([]Vec3, 0, 15)
	axes = append(axes, a.axes[:]...)
	axes = append(axes, b.axes[:]...)
	for _, axisA := range a.axes {
		for _, axisB := range b.axes {
			cross := axisA.Cross(axisB)
			if cross.LengthSquared() > eps {
				axes = append(axes, cross.Normalized())
			}
		}
	}

	for _, axis := range axes {
		if math.Abs(distance.Dot(axis)) > projectedRadius(a, axis)+projectedRadius(b, axis) {
			return false
		}
	}
	return true
}

func projectedRadius(box primitive, axis Vec3) float64 {
	r := 0.0
	for i, boxAxis := range box.axes {
		r += box.halfExtent(i) * math.Abs(boxAxis.Dot(axis))
	}
	return r
}
