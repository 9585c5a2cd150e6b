package physics

// BodyID identifies a body of a System. 0 is never a valid body.
type BodyID uint32

// MotionType decides how a body moves.
type MotionType int

const (
	// MotionStatic bodies never move on their own.
	MotionStatic MotionType = iota
	// MotionKinematic bodies move with their velocity and aren't affected by gravity or impulses.
	MotionKinematic
	// MotionDynamic bodies are simulated: gravity and impulses change their velocity.
	MotionDynamic
)

func (motion MotionType) String() string {
	switch motion {
	case MotionStatic:
		return "static"
	case MotionKinematic:
		return "kinematic"
	}
	return "dynamic"
}

// BodySettings describes a body to create.
type BodySettings struct {
	Shape      Shape
	Position   Vec3
	Rotation   Quat
	MotionType MotionType

	// IsSensor bodies report contacts but don't block anything.
	IsSensor bool

	// Mass of dynamic bodies; <= 0 means 1.
	Mass float64
	// GravityFactor scales gravity for dynamic bodies; 0 means no gravity.
	GravityFactor float64

	// UserData is stored with the body and reported in contact events.
	UserData uint64
}

type body struct {
	id       BodyID
	settings BodySettings

	position        Vec3
	rotation        Quat
	linearVelocity  Vec3
	angularVelocity Vec3
	inverseMass     float64

	isAdded     bool
	isCharacter bool
	bounds      AABB
}

func newBody(id BodyID, settings BodySettings) *body {
	b := &body{
		id:       id,
		settings: settings,
		position: settings.Position,
		rotation: settings.Rotation,
	}
	if b.rotation.isZero() {
		b.rotation = IdentityQuat()
	}
	if settings.MotionType == MotionDynamic {
		mass := settings.Mass
		if mass <= 0 {
			mass = 1
		}
		b.inverseMass = 1 / mass
	}
	return b
}

func (b *body) updateBounds() {
	b.bounds = b.settings.Shape.Bounds(b.position, b.rotation)
}

// reportsContactsWith decides whether a pair of bodies generates contact events. Static bodies don't touch each
// other; kinematic bodies only touch dynamic bodies and sensors.
func (b *body) reportsContactsWith(other *body) bool {
	if b.settings.MotionType == MotionStatic && other.settings.MotionType == MotionStatic {
		return false
	}
	if b.settings.MotionType == MotionDynamic || other.settings.MotionType == MotionDynamic {
		return true
	}
	return b.settings.IsSensor || other.settings.IsSensor
}

// BodyPair is an unordered pair of bodies; Body1 is always the lower ID.
type BodyPair struct {
	Body1, Body2 BodyID
}

// NewBodyPair orders a and b into a BodyPair.
func NewBodyPair(a, b BodyID) BodyPair {
	if b < a {
		a, b = b, a
	}
	return BodyPair{Body1: a, Body2: b}
}

// Contact is a new contact between two bodies. UserData1 belongs to Body1 and UserData2 to Body2.
type Contact struct {
	Pair      BodyPair
	UserData1 uint64
	UserData2 uint64
	IsSensor  bool
}

// ContactListener receives contact events during Update. It's called from the System's worker goroutines, so it
// must be safe for concurrent use, and it must not call back into the System.
type ContactListener interface {
	OnContactAdded(contact Contact)
	// OnContactRemoved only carries the body IDs: the bodies may already be destroyed.
	OnContactRemoved(pair BodyPair)
}
