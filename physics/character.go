package physics

import "fmt"

// supportProbeDistance is how far below a character the ground is looked for.
const supportProbeDistance = 0.05

// CharacterSettings describes a character to create.
type CharacterSettings struct {
	Shape    Shape
	Position Vec3
	Rotation Quat
	// GravityFactor scales gravity while the character isn't supported; 0 means no gravity.
	GravityFactor float64
	UserData      uint64
}

// Character is a virtual character: a kinematic body moved by its velocity and by gravity, stopped from falling by
// any solid body under it. It takes part in contacts like any other kinematic body.
type Character struct {
	id            BodyID
	gravityFactor float64
	isSupported   bool
}

// CreateCharacter creates a character and adds it to the simulation.
func (s *System) CreateCharacter(settings CharacterSettings) (*Character, error) {
	id, err := s.CreateBody(BodySettings{
		Shape:      settings.Shape,
		Position:   settings.Position,
		Rotation:   settings.Rotation,
		MotionType: MotionKinematic,
		UserData:   settings.UserData,
	})
	if err != nil {
		return nil, fmt.Errorf("create character: %w", err)
	}

	character := &Character{id: id, gravityFactor: settings.GravityFactor}

	s.mu.Lock()
	s.bodies[id].isAdded = true
	s.bodies[id].isCharacter = true
	s.characters[character] = struct{}{}
	s.mu.Unlock()

	return character, nil
}

// DestroyCharacter removes a character from the simulation and destroys its body.
func (s *System) DestroyCharacter(character *Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.characters[character]; !ok {
		return fmt.Errorf("physics: unknown character (body %d)", character.id)
	}
	delete(s.characters, character)
	delete(s.bodies, character.id)
	return nil
}

// CharacterCount returns the number of characters.
func (s *System) CharacterCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.characters)
}

// BodyID returns the ID of the character's body.
func (character *Character) BodyID() BodyID { return character.id }

// IsSupported reports whether the character stood on something at the end of the last Update.
func (s *System) IsSupported(character *Character) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return character.isSupported
}

// step moves the character; s.mu is held.
func (character *Character) step(s *System, dt float64) {
	b, ok := s.bodies[character.id]
	if !ok {
		return
	}

	character.isSupported = s.isSupported(b)

	velocity := b.linearVelocity
	if character.isSupported {
		if velocity.Y < 0 {
			velocity.Y = 0
		}
	} else {
		velocity = velocity.Add(s.gravity.Scale(character.gravityFactor * dt))
	}
	b.linearVelocity = velocity
	b.position = b.position.Add(velocity.Scale(dt))
	b.rotation = b.rotation.integrate(b.angularVelocity, dt)
}

// isSupported reports whether a solid body is right under b; s.mu is held.
func (s *System) isSupported(b *body) bool {
	probePosition := b.position.Sub(Vec3{Y: supportProbeDistance})
	probe := b.settings.Shape.primitives(probePosition, b.rotation, nil)
	probeBounds := b.settings.Shape.Bounds(probePosition, b.rotation)

	var scratch []primitive
	for _, other := range s.bodies {
		if other == b || !other.isAdded || other.settings.IsSensor || other.settings.MotionType == MotionDynamic {
			continue
		}
		if !probeBounds.Overlaps(other.bounds) {
			continue
		}
		scratch = other.settings.Shape.primitives(other.position, other.rotation, scratch[:0])
		if anyOverlap(probe, scratch) {
			return true
		}
	}
	return false
}
