package physics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu      sync.Mutex
	added   []Contact
	removed []BodyPair
}

func (l *recordingListener) OnContactAdded(contact Contact) {
	l.mu.Lock()
	l.added = append(l.added, contact)
	l.mu.Unlock()
}

func (l *recordingListener) OnContactRemoved(pair BodyPair) {
	l.mu.Lock()
	l.removed = append(l.removed, pair)
	l.mu.Unlock()
}

func (l *recordingListener) reset() {
	l.mu.Lock()
	l.added, l.removed = nil, nil
	l.mu.Unlock()
}

func newTestSystem(t testing.TB) (*System, *recordingListener) {
	t.Helper()
	system := NewSystem(Settings{Gravity: Vec3{Y: -10}, WorkerCount: 4})
	listener := &recordingListener{}
	system.SetContactListener(listener)
	return system, listener
}

func addBody(t testing.TB, system *System, settings BodySettings) BodyID {
	t.Helper()
	id, err := system.CreateBody(settings)
	require.NoError(t, err)
	require.NoError(t, system.AddBody(id))
	return id
}

func TestCreateBodyRejectsInvalidShapes(t *testing.T) {
	system, _ := newTestSystem(t)

	for name, shape := range map[string]Shape{
		"nil":              nil,
		"zero sphere":      Sphere{},
		"flat box":         Box{HalfExtents: Vec3{X: 1, Y: 0, Z: 1}},
		"empty compound":   Compound{},
		"negative capsule": Capsule{Radius: 1, HalfHeight: -1},
		"bad part":         Compound{Parts: []CompoundPart{{Shape: Sphere{Radius: -1}}}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := system.CreateBody(BodySettings{Shape: shape})
			assert.ErrorIs(t, err, ErrInvalidShape)
		})
	}

	assert.Equal(t, 0, system.BodyCount())
}

func TestBodyLifecycle(t *testing.T) {
	system, _ := newTestSystem(t)

	id, err := system.CreateBody(BodySettings{Shape: Sphere{Radius: 1}})
	require.NoError(t, err)
	assert.False(t, system.IsAdded(id))

	require.NoError(t, system.AddBody(id))
	assert.True(t, system.IsAdded(id))
	assert.Error(t, system.DestroyBody(id), "added bodies can't be destroyed")

	require.NoError(t, system.RemoveBody(id))
	require.NoError(t, system.DestroyBody(id))
	assert.Equal(t, 0, system.BodyCount())
	assert.Error(t, system.AddBody(id))
}

func TestDynamicBodiesFallAndTakeImpulses(t *testing.T) {
	system, _ := newTestSystem(t)

	falling := addBody(t, system, BodySettings{Shape: Sphere{Radius: 1}, MotionType: MotionDynamic, GravityFactor: 1, Position: Vec3{Y: 10}})
	static := addBody(t, system, BodySettings{Shape: Sphere{Radius: 1}, Position: Vec3{X: 100}})

	system.Update(0.5)

	position, _, err := system.PositionAndRotation(falling)
	require.NoError(t, err)
	assert.InDelta(t, 7.5, position.Y, 1e-9)

	velocity, err := system.LinearVelocity(falling)
	require.NoError(t, err)
	assert.InDelta(t, -5, velocity.Y, 1e-9)

	require.NoError(t, system.AddImpulse(falling, Vec3{Y: 5}))
	velocity, _ = system.LinearVelocity(falling)
	assert.InDelta(t, 0, velocity.Y, 1e-9)

	assert.Error(t, system.AddImpulse(static, Vec3{Y: 1}))
	assert.Error(t, system.SetLinearVelocity(static, Vec3{Y: 1}))
}

func TestContactsAreReportedWhenTheyBeginAndEnd(t *testing.T) {
	system, listener := newTestSystem(t)

	sensor := addBody(t, system, BodySettings{Shape: Sphere{Radius: 1}, IsSensor: true, UserData: 10})
	mover := addBody(t, system, BodySettings{Shape: Sphere{Radius: 0.5}, MotionType: MotionDynamic, Position: Vec3{X: 1}, UserData: 20})

	system.Update(1.0 / 60)

	require.Len(t, listener.added, 1)
	contact := listener.added[0]
	assert.Equal(t, NewBodyPair(sensor, mover), contact.Pair)
	assert.True(t, contact.IsSensor)
	assert.Equal(t, uint64(10), contact.UserData1)
	assert.Equal(t, uint64(20), contact.UserData2)
	assert.Empty(t, listener.removed)

	// A contact that goes on isn't reported again.
	listener.reset()
	system.Update(1.0 / 60)
	assert.Empty(t, listener.added)
	assert.Empty(t, listener.removed)
	assert.Equal(t, 1, system.ContactCount())

	require.NoError(t, system.SetPositionAndRotation(mover, Vec3{X: 5}, IdentityQuat()))
	system.Update(1.0 / 60)
	assert.Empty(t, listener.added)
	assert.Equal(t, []BodyPair{NewBodyPair(sensor, mover)}, listener.removed)
	assert.Equal(t, 0, system.ContactCount())
}

func TestRemovedBodiesEndTheirContacts(t *testing.T) {
	system, listener := newTestSystem(t)

	sensor := addBody(t, system, BodySettings{Shape: Box{HalfExtents: Vec3{1, 1, 1}}, IsSensor: true})
	mover := addBody(t, system, BodySettings{Shape: Sphere{Radius: 0.5}, MotionType: MotionKinematic})
	system.Update(1.0 / 60)
	require.Len(t, listener.added, 1)

	listener.reset()
	require.NoError(t, system.RemoveBody(sensor))
	require.NoError(t, system.DestroyBody(sensor))
	system.Update(1.0 / 60)

	assert.Equal(t, []BodyPair{NewBodyPair(sensor, mover)}, listener.removed)
}

func TestStaticAndKinematicBodiesDontTouchEachOther(t *testing.T) {
	system, listener := newTestSystem(t)

	addBody(t, system, BodySettings{Shape: Sphere{Radius: 1}})
	addBody(t, system, BodySettings{Shape: Sphere{Radius: 1}})
	addBody(t, system, BodySettings{Shape: Sphere{Radius: 1}, MotionType: MotionKinematic})

	system.Update(1.0 / 60)
	assert.Empty(t, listener.added)
}

func TestShapeOverlaps(t *testing.T) {
	rotated := Quat{Z: 0.3826834323650898, W: 0.9238795325112867} // 45 degrees around Z

	testCases := []struct {
		name      string
		a, b      Shape
		aAt, bAt  Vec3
		bRotation Quat
		overlap   bool
	}{
		{"spheres touching", Sphere{Radius: 1}, Sphere{Radius: 1}, Vec3{}, Vec3{X: 1.9}, IdentityQuat(), true},
		{"spheres apart", Sphere{Radius: 1}, Sphere{Radius: 1}, Vec3{}, Vec3{X: 2.1}, IdentityQuat(), false},
		{"capsule reaching up", Capsule{Radius: 0.5, HalfHeight: 1}, Sphere{Radius: 0.5}, Vec3{}, Vec3{Y: 1.9}, IdentityQuat(), true},
		{"capsule side", Capsule{Radius: 0.5, HalfHeight: 1}, Sphere{Radius: 0.5}, Vec3{}, Vec3{X: 1.1}, IdentityQuat(), false},
		{"box and sphere", Box{HalfExtents: Vec3{1, 1, 1}}, Sphere{Radius: 0.5}, Vec3{}, Vec3{X: 1.4}, IdentityQuat(), true},
		{"box corner and sphere", Box{HalfExtents: Vec3{1, 1, 1}}, Sphere{Radius: 0.5}, Vec3{}, Vec3{X: 1.4, Y: 1.4}, IdentityQuat(), false},
		{"boxes", Box{HalfExtents: Vec3{1, 1, 1}}, Box{HalfExtents: Vec3{1, 1, 1}}, Vec3{}, Vec3{X: 1.9}, IdentityQuat(), true},
		{"rotated box corner", Box{HalfExtents: Vec3{1, 1, 1}}, Box{HalfExtents: Vec3{1, 1, 1}}, Vec3{}, Vec3{X: 2.3}, rotated, true},
		{"rotated box apart", Box{HalfExtents: Vec3{1, 1, 1}}, Box{HalfExtents: Vec3{1, 1, 1}}, Vec3{}, Vec3{X: 2.5}, rotated, false},
		{
			"compound part",
			Compound{Parts: []CompoundPart{{Shape: Sphere{Radius: 0.5}}, {Shape: Sphere{Radius: 0.5}, Position: Vec3{X: 3}}}},
			Sphere{Radius: 0.5}, Vec3{}, Vec3{X: 3.5}, IdentityQuat(), true,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			a := testCase.a.primitives(testCase.aAt, IdentityQuat(), nil)
			b := testCase.b.primitives(testCase.bAt, testCase.bRotation, nil)
			assert.Equal(t, testCase.overlap, anyOverlap(a, b))
			assert.Equal(t, testCase.overlap, anyOverlap(b, a))
		})
	}
}

func TestCastRay(t *testing.T) {
	system, _ := newTestSystem(t)

	near := addBody(t, system, BodySettings{Shape: Sphere{Radius: 1}, Position: Vec3{X: 5}, UserData: 1})
	far := addBody(t, system, BodySettings{Shape: Box{HalfExtents: Vec3{1, 1, 1}}, Position: Vec3{X: 10}, UserData: 2})
	addBody(t, system, BodySettings{Shape: Sphere{Radius: 1}, Position: Vec3{X: 2}, IsSensor: true})

	hit, ok := system.CastRay(Vec3{}, Vec3{X: 20}, nil)
	require.True(t, ok)
	assert.Equal(t, near, hit.Body)
	assert.Equal(t, uint64(1), hit.UserData)
	assert.InDelta(t, 0.2, hit.Fraction, 1e-4)
	assert.InDelta(t, 4, hit.Position.X, 1e-4)
	assert.InDelta(t, -1, hit.Normal.X, 1e-4)

	hit, ok = system.CastRay(Vec3{}, Vec3{X: 20}, func(id BodyID, userData uint64) bool { return id != near })
	require.True(t, ok)
	assert.Equal(t, far, hit.Body)
	assert.InDelta(t, 9, hit.Position.X, 1e-4)
	assert.InDelta(t, -1, hit.Normal.X, 1e-4)

	_, ok = system.CastRay(Vec3{}, Vec3{X: 3}, nil)
	assert.False(t, ok, "the ray ends before the sphere")

	_, ok = system.CastRay(Vec3{Y: 5}, Vec3{X: 20, Y: 5}, nil)
	assert.False(t, ok)
}

func TestCharactersStandOnSolidBodies(t *testing.T) {
	system, _ := newTestSystem(t)

	addBody(t, system, BodySettings{Shape: Box{HalfExtents: Vec3{10, 0.5, 10}}, Position: Vec3{Y: -0.5}})

	standing, err := system.CreateCharacter(CharacterSettings{Shape: Capsule{Radius: 0.5, HalfHeight: 0.5}, Position: Vec3{Y: 1}, GravityFactor: 1})
	require.NoError(t, err)
	falling, err := system.CreateCharacter(CharacterSettings{Shape: Capsule{Radius: 0.5, HalfHeight: 0.5}, Position: Vec3{X: 5, Y: 3}, GravityFactor: 1})
	require.NoError(t, err)

	require.NoError(t, system.SetLinearVelocity(standing.BodyID(), Vec3{X: 1, Y: -1}))

	for i := 0; i < 10; i++ {
		system.Update(0.01)
	}

	position, _, err := system.PositionAndRotation(standing.BodyID())
	require.NoError(t, err)
	assert.InDelta(t, 1, position.Y, 1e-9)
	assert.InDelta(t, 0.1, position.X, 1e-9)
	assert.True(t, system.IsSupported(standing))

	position, _, _ = system.PositionAndRotation(falling.BodyID())
	assert.Less(t, position.Y, 3.0)
	assert.False(t, system.IsSupported(falling))

	require.NoError(t, system.DestroyCharacter(standing))
	assert.Error(t, system.DestroyCharacter(standing))
	assert.Equal(t, 1, system.CharacterCount())
}

func TestSplitChunks(t *testing.T) {
	assert.Nil(t, splitChunks(0, 4))
	assert.Equal(t, [][2]int{{0, 1}, {1, 2}}, splitChunks(2, 8))
	assert.Equal(t, [][2]int{{0, 3}, {3, 6}, {6, 7}}, splitChunks(7, 3))
}

func BenchmarkUpdate(b *testing.B) {
	system, _ := newTestSystem(b)

	for i := 0; i < 500; i++ {
		addBody(b, system, BodySettings{
			Shape:         Sphere{Radius: 0.5},
			MotionType:    MotionDynamic,
			GravityFactor: 1,
			Position:      Vec3{X: float64(i%25) * 0.9, Y: float64(i / 25)},
		})
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		system.Update(1.0 / 60)
	}
}
