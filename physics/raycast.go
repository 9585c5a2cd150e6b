package physics

import "math"

const (
	rayHitDistance   = 1e-5
	rayMaxMarchSteps = 128
)

// RayHit is the closest body hit by a ray.
type RayHit struct {
	Body     BodyID
	UserData uint64
	Position Vec3
	Normal   Vec3
	// Fraction is how far along the ray the hit is, from 0 (at from) to 1 (at to).
	Fraction float64
}

// CastRay returns the closest added body the ray from from to to hits. Bodies for which filter returns false are
// ignored; a nil filter accepts every body. Sensors are never hit.
func (s *System) CastRay(from, to Vec3, filter func(id BodyID, userData uint64) bool) (RayHit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ray := to.Sub(from)
	length := ray.Length()
	if length < 1e-12 {
		return RayHit{}, false
	}
	direction := ray.Scale(1 / length)
	rayBounds := AABB{Min: from.Min(to), Max: from.Max(to)}

	best := RayHit{Fraction: math.Inf(1)}
	found := false

	var scratch []primitive
	for _, b := range s.bodies {
		if !b.isAdded || b.settings.IsSensor || !rayBounds.Overlaps(b.bounds) {
			continue
		}
		if filter != nil && !filter(b.id, b.settings.UserData) {
			continue
		}
		scratch = b.settings.Shape.primitives(b.position, b.rotation, scratch[:0])
		for _, p := range scratch {
			distance, normal, hit := marchRay(p, from, direction, math.Min(length, best.Fraction*length))
			if !hit {
				continue
			}
			fraction := distance / length
			if fraction < best.Fraction {
				best = RayHit{
					Body:     b.id,
					UserData: b.settings.UserData,
					Position: from.Add(direction.Scale(distance)),
					Normal:   normal,
					Fraction: fraction,
				}
				found = true
			}
		}
	}

	return best, found
}

// marchRay sphere-traces the ray against a primitive, up to maxDistance.
func marchRay(p primitive, from, direction Vec3, maxDistance float64) (float64, Vec3, bool) {
	t := 0.0
	for i := 0; i < rayMaxMarchSteps && t <= maxDistance; i++ {
		point := from.Add(direction.Scale(t))
		distance, closest := p.distance(point)
		if distance < rayHitDistance {
			return t, p.normalAt(point, closest), true
		}
		t += distance
	}
	return 0, Vec3{}, false
}

// distance returns the distance from point to the surface of the primitive (0 inside) and the closest surface
// point (for boxes) or axis point (for swept spheres).
func (p primitive) distance(point Vec3) (float64, Vec3) {
	if p.isBox {
		closest := closestPointOnBox(p, point)
		return closest.Sub(point).Length(), closest
	}
	onAxis := closestPointOnSegment(p.start, p.end, point)
	return math.Max(0, point.Sub(onAxis).Length()-p.radius), onAxis
}

func (p primitive) normalAt(point, closest Vec3) Vec3 {
	if !p.isBox {
		return point.Sub(closest).Normalized()
	}

	// The face whose axis the point lies furthest out along.
	local := point.Sub(p.center)
	bestAxis, bestRatio, sign := 0, -1.0, 1.0
	for i, axis := range p.axes {
		projection := local.Dot(axis)
		ratio := math.Abs(projection) / p.halfExtent(i)
		if ratio > bestRatio {
			bestAxis, bestRatio = i, ratio
			sign = math.Copysign(1, projection)
		}
	}
	return p.axes[bestAxis].Scale(sign)
}
