package physics

import (
	"fmt"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Settings configures a System.
type Settings struct {
	Gravity Vec3
	// WorkerCount is the number of goroutines contact detection is spread over; <= 0 uses one per CPU.
	WorkerCount int
	Logger      *zap.Logger
}

// System owns the bodies and characters and steps the simulation. Its methods are safe for concurrent use, but
// Update is meant to be called from one goroutine.
type System struct {
	log     *zap.Logger
	gravity Vec3
	workers int

	mu         sync.Mutex
	bodies     map[BodyID]*body
	nextID     BodyID
	characters map[*Character]struct{}
	contacts   map[BodyPair]struct{}
	listener   ContactListener
}

// NewSystem creates an empty System.
func NewSystem(settings Settings) *System {
	workers := settings.WorkerCount
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	log := settings.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &System{
		log:        log,
		gravity:    settings.Gravity,
		workers:    workers,
		bodies:     map[BodyID]*body{},
		nextID:     1,
		characters: map[*Character]struct{}{},
		contacts:   map[BodyPair]struct{}{},
	}
}

// SetContactListener sets the listener contact events are sent to during Update.
func (s *System) SetContactListener(listener ContactListener) {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
}

// CreateBody creates a body. It doesn't take part in the simulation until it's added with AddBody.
func (s *System) CreateBody(settings BodySettings) (BodyID, error) {
	if err := validateShape(settings.Shape); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	b := newBody(id, settings)
	b.updateBounds()
	s.bodies[id] = b

	s.log.Debug("body created", zap.Uint32("body", uint32(id)), zap.Stringer("motion", settings.MotionType),
		zap.Bool("sensor", settings.IsSensor))

	return id, nil
}

// AddBody adds a created body to the simulation.
func (s *System) AddBody(id BodyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.body(id)
	if err != nil {
		return err
	}
	b.isAdded = true
	return nil
}

// RemoveBody takes a body out of the simulation without destroying it. Its contacts are reported as removed
// during the next Update.
func (s *System) RemoveBody(id BodyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.body(id)
	if err != nil {
		return err
	}
	b.isAdded = false
	return nil
}

// IsAdded reports whether the body exists and takes part in the simulation.
func (s *System) IsAdded(id BodyID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bodies[id]
	return ok && b.isAdded
}

// DestroyBody destroys a body that isn't added anymore.
func (s *System) DestroyBody(id BodyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.body(id)
	if err != nil {
		return err
	}
	if b.isAdded {
		return fmt.Errorf("physics: body %d is still added", id)
	}
	delete(s.bodies, id)
	return nil
}

// BodyCount returns the number of bodies, added or not. Characters count as one body each.
func (s *System) BodyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bodies)
}

// ContactCount returns the number of body pairs currently in contact.
func (s *System) ContactCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contacts)
}

// SetPositionAndRotation teleports a body.
func (s *System) SetPositionAndRotation(id BodyID, position Vec3, rotation Quat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.body(id)
	if err != nil {
		return err
	}
	b.position = position
	b.rotation = rotation.Normalized()
	b.updateBounds()
	return nil
}

// PositionAndRotation returns where a body is.
func (s *System) PositionAndRotation(id BodyID) (Vec3, Quat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.body(id)
	if err != nil {
		return Vec3{}, Quat{}, err
	}
	return b.position, b.rotation, nil
}

// SetLinearVelocity sets the velocity of a kinematic or dynamic body.
func (s *System) SetLinearVelocity(id BodyID, velocity Vec3) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.body(id)
	if err != nil {
		return err
	}
	if b.settings.MotionType == MotionStatic {
		return fmt.Errorf("physics: body %d is static", id)
	}
	b.linearVelocity = velocity
	return nil
}

// LinearVelocity returns the velocity of a body.
func (s *System) LinearVelocity(id BodyID) (Vec3, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.body(id)
	if err != nil {
		return Vec3{}, err
	}
	return b.linearVelocity, nil
}

// SetAngularVelocity sets the angular velocity (axis scaled by radians per second) of a kinematic or dynamic body.
func (s *System) SetAngularVelocity(id BodyID, velocity Vec3) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.body(id)
	if err != nil {
		return err
	}
	if b.settings.MotionType == MotionStatic {
		return fmt.Errorf("physics: body %d is static", id)
	}
	b.angularVelocity = velocity
	return nil
}

// AddImpulse changes the velocity of a dynamic body by impulse divided by its mass.
func (s *System) AddImpulse(id BodyID, impulse Vec3) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.body(id)
	if err != nil {
		return err
	}
	if b.settings.MotionType != MotionDynamic {
		return fmt.Errorf("physics: body %d is %s, only dynamic bodies take impulses", id, b.settings.MotionType)
	}
	b.linearVelocity = b.linearVelocity.Add(impulse.Scale(b.inverseMass))
	return nil
}

func (s *System) body(id BodyID) (*body, error) {
	b, ok := s.bodies[id]
	if !ok {
		return nil, fmt.Errorf("physics: no body %d", id)
	}
	return b, nil
}

// Update advances the simulation by dt: bodies and characters move, then contacts are detected. New and ended
// contacts are reported to the listener from the worker goroutines before Update returns.
func (s *System) Update(dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.bodies {
		if !b.isAdded || b.isCharacter {
			continue
		}
		switch b.settings.MotionType {
		case MotionDynamic:
			b.linearVelocity = b.linearVelocity.Add(s.gravity.Scale(b.settings.GravityFactor * dt))
			fallthrough
		case MotionKinematic:
			b.position = b.position.Add(b.linearVelocity.Scale(dt))
			b.rotation = b.rotation.integrate(b.angularVelocity, dt)
		}
	}

	for character := range s.characters {
		character.step(s, dt)
	}

	active := make([]*body, 0, len(s.bodies))
	for _, b := range s.bodies {
		if b.isAdded {
			b.updateBounds()
			active = append(active, b)
		}
	}

	s.detectContacts(active)
}

// candidatePairs returns the pairs of bodies whose bounds overlap, sweeping along X.
func candidatePairs(active []*body) [][2]*body {
	sort.Slice(active, func(i, j int) bool {
		return active[i].bounds.Min.X < active[j].bounds.Min.X
	})

	var pairs [][2]*body
	for i, a := range active {
		for _, b := range active[i+1:] {
			if b.bounds.Min.X > a.bounds.Max.X {
				break
			}
			if a.bounds.Overlaps(b.bounds) && a.reportsContactsWith(b) {
				pairs = append(pairs, [2]*body{a, b})
			}
		}
	}
	return pairs
}

func (s *System) detectContacts(active []*body) {
	pairs := candidatePairs(active)
	previous := s.contacts
	listener := s.listener

	chunks := splitChunks(len(pairs), s.workers)
	found := make([][]BodyPair, len(chunks))

	var group errgroup.Group
	for c, chunk := range chunks {
		group.Go(func() error {
			var scratchA, scratchB []primitive
			for _, candidate := range pairs[chunk[0]:chunk[1]] {
				a, b := candidate[0], candidate[1]
				scratchA = a.settings.Shape.primitives(a.position, a.rotation, scratchA[:0])
				scratchB = b.settings.Shape.primitives(b.position, b.rotation, scratchB[:0])
				if !anyOverlap(scratchA, scratchB) {
					continue
				}

				pair := NewBodyPair(a.id, b.id)
				found[c] = append(found[c], pair)

				if _, existed := previous[pair]; existed || listener == nil {
					continue
				}
				contact := Contact{Pair: pair, IsSensor: a.settings.IsSensor || b.settings.IsSensor}
				if pair.Body1 == a.id {
					contact.UserData1, contact.UserData2 = a.settings.UserData, b.settings.UserData
				} else {
					contact.UserData1, contact.UserData2 = b.settings.UserData, a.settings.UserData
				}
				listener.OnContactAdded(contact)
			}
			return nil
		})
	}
	_ = group.Wait()

	current := make(map[BodyPair]struct{}, len(previous))
	for _, pairs := range found {
		for _, pair := range pairs {
			current[pair] = struct{}{}
		}
	}

	if listener != nil {
		var ended []BodyPair
		for pair := range previous {
			if _, ok := current[pair]; !ok {
				ended = append(ended, pair)
			}
		}

		var removals errgroup.Group
		for _, chunk := range splitChunks(len(ended), s.workers) {
			removals.Go(func() error {
				for _, pair := range ended[chunk[0]:chunk[1]] {
					listener.OnContactRemoved(pair)
				}
				return nil
			})
		}
		_ = removals.Wait()
	}

	s.contacts = current
}

func anyOverlap(a, b []primitive) bool {
	for _, pa := range a {
		for _, pb := range b {
			if primitivesOverlap(pa, pb) {
				return true
			}
		}
	}
	return false
}

// splitChunks splits [0, n) into at most workers ranges of similar size.
func splitChunks(n, workers int) [][2]int {
	if n == 0 {
		return nil
	}
	if workers > n {
		workers = n
	}
	chunks := make([][2]int, 0, workers)
	size := (n + workers - 1) / workers
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		chunks = append(chunks, [2]int{start, end})
	}
	return chunks
}
