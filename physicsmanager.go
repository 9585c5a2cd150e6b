package stage3d

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/solarlune/stage3d/physics"
)

// PhysicsSettings configures the physics of a World.
type PhysicsSettings struct {
	// FixedStep is the duration of one physics sub-step, in seconds.
	FixedStep float64 `toml:"fixed_step"`
	// MaxSubSteps is the most sub-steps run in one frame; time beyond that is dropped.
	MaxSubSteps int    `toml:"max_sub_steps"`
	Gravity     Vector `toml:"gravity"`
	// WorkerCount is the number of contact detection goroutines; <= 0 uses one per CPU.
	WorkerCount int `toml:"worker_count"`
}

// DefaultPhysicsSettings returns 60 sub-steps per second, at most 4 per frame, with earth gravity.
func DefaultPhysicsSettings() PhysicsSettings {
	return PhysicsSettings{
		FixedStep:   1.0 / 60,
		MaxSubSteps: 4,
		Gravity:     Vector{Y: -9.81},
	}
}

func (settings PhysicsSettings) withDefaults() PhysicsSettings {
	defaults := DefaultPhysicsSettings()
	if settings == (PhysicsSettings{}) {
		return defaults
	}
	if settings.FixedStep <= 0 {
		settings.FixedStep = defaults.FixedStep
	}
	if settings.MaxSubSteps <= 0 {
		settings.MaxSubSteps = defaults.MaxSubSteps
	}
	return settings
}

// PhysicsManager keeps the physics bodies of a World's nodes in lockstep with the nodes' lifecycle and steps the
// simulation. Physics nodes create their body when they spawn and destroy it when they despawn; contacts are
// reported to the nodes on the main goroutine after each sub-step.
type PhysicsManager struct {
	world    *World
	settings PhysicsSettings
	system   *physics.System
	contacts *contactQueue

	accumulator float64
	// warnedFallingBehind makes the first dropped frame time a warning and the rest debug messages.
	warnedFallingBehind bool

	// mu guards the body map and the tracking sets.
	mu sync.Mutex
	// bodyNodes maps every body (characters included) to the ID of its node.
	bodyNodes map[physics.BodyID]uint64
	// Nodes whose simulation results are copied back after every sub-step, by node ID.
	simulated  map[uint64]PhysicsNode
	moving     map[uint64]PhysicsNode
	characters map[uint64]*CharacterBodyNode
	isClosed   bool
}

func newPhysicsManager(world *World, settings PhysicsSettings) *PhysicsManager {
	settings = settings.withDefaults()

	pm := &PhysicsManager{
		world:    world,
		settings: settings,
		system: physics.NewSystem(physics.Settings{
			Gravity:     toPhysicsVec(settings.Gravity),
			WorkerCount: settings.WorkerCount,
			Logger:      Logger().Named("physics"),
		}),
		contacts:   newContactQueue(),
		bodyNodes:  map[physics.BodyID]uint64{},
		simulated:  map[uint64]PhysicsNode{},
		moving:     map[uint64]PhysicsNode{},
		characters: map[uint64]*CharacterBodyNode{},
	}
	pm.system.SetContactListener(pm.contacts)

	return pm
}

// Settings returns the settings the manager runs with.
func (pm *PhysicsManager) Settings() PhysicsSettings { return pm.settings }

// System returns the underlying physics system.
func (pm *PhysicsManager) System() *physics.System { return pm.system }

// BodyCount returns the number of bodies (characters included) the manager created for nodes.
func (pm *PhysicsManager) BodyCount() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.bodyNodes)
}

// TrackedNodeCount returns the number of simulated, moving and character nodes.
func (pm *PhysicsManager) TrackedNodeCount() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.simulated) + len(pm.moving) + len(pm.characters)
}

// CreateBodyForNode creates and adds the physics body of a spawned physics node. It's fatal if the node isn't
// spawned (its ID is the body's user data), has no valid shape, already has a body, or isn't a physics node.
func (pm *PhysicsManager) CreateBodyForNode(node INode) {
	nodeID, ok := node.ID()
	if !ok {
		fatal("can't create a physics body for node %q: it has no ID (not spawned)", node.Name())
	}

	physicsNode, ok := node.(PhysicsNode)
	if !ok {
		fatal("can't create a physics body for node %q: %s isn't a physics node", node.Name(), nodeTypeName(node))
	}
	body := physicsNode.physicsBody()
	if body.hasBody() {
		fatal("node %q already has a physics body", node.Name())
	}

	shape := physicsNode.CollisionShape()
	if shape == nil || shape.Shape() == nil {
		fatal("can't create a physics body for node %q: it has no collision shape", node.Name())
	}
	if err := shape.Shape().Validate(); err != nil {
		fatal("can't create a physics body for node %q: %v", node.Name(), err)
	}

	worldTransform := physicsNode.WorldMatrix()
	location, _, rotation := worldTransform.Decompose()

	settings := physics.BodySettings{
		Shape:    shape.Shape(),
		Position: toPhysicsVec(location),
		Rotation: toPhysicsQuat(rotation),
		UserData: nodeID,
	}

	switch n := physicsNode.builtin().(type) {
	case *CollisionNode, *CompoundCollisionNode:
		settings.MotionType = physics.MotionStatic
	case *TriggerVolumeNode:
		settings.MotionType = physics.MotionStatic
		settings.IsSensor = true
	case *SimulatedBodyNode:
		settings.MotionType = physics.MotionDynamic
		settings.Mass = n.Mass
		settings.GravityFactor = n.GravityFactor
	case *MovingBodyNode:
		settings.MotionType = physics.MotionKinematic
	case *CharacterBodyNode:
		pm.createCharacter(n, nodeID, settings)
		return
	default:
		fatal("can't create a physics body for node %q: unknown physics node type %s", node.Name(), nodeTypeName(node))
	}

	bodyID, err := pm.system.CreateBody(settings)
	if err != nil {
		fatal("can't create a physics body for node %q: %v", node.Name(), err)
	}
	if err := pm.system.AddBody(bodyID); err != nil {
		fatal("can't add the physics body of node %q: %v", node.Name(), err)
	}

	pm.mu.Lock()
	pm.bodyNodes[bodyID] = nodeID
	switch physicsNode.builtin().(type) {
	case *SimulatedBodyNode:
		pm.simulated[nodeID] = physicsNode
	case *MovingBodyNode:
		pm.moving[nodeID] = physicsNode
	}
	pm.mu.Unlock()

	body.setBody(bodyID, nil)

	Logger().Debug("physics body created", zap.String("node", node.Name()), zap.Uint64("id", nodeID),
		zap.Uint32("body", uint32(bodyID)), zap.Stringer("motion", settings.MotionType))
}

func (pm *PhysicsManager) createCharacter(node *CharacterBodyNode, nodeID uint64, settings physics.BodySettings) {
	character, err := pm.system.CreateCharacter(physics.CharacterSettings{
		Shape:         settings.Shape,
		Position:      settings.Position,
		Rotation:      settings.Rotation,
		GravityFactor: node.GravityFactor,
		UserData:      nodeID,
	})
	if err != nil {
		fatal("can't create the character of node %q: %v", node.Name(), err)
	}

	pm.mu.Lock()
	pm.bodyNodes[character.BodyID()] = nodeID
	pm.characters[nodeID] = node
	pm.mu.Unlock()

	node.physicsBody().setBody(character.BodyID(), character)

	Logger().Debug("physics character created", zap.String("node", node.Name()), zap.Uint64("id", nodeID),
		zap.Uint32("body", uint32(character.BodyID())))
}

// DestroyBodyForNode is the inverse of CreateBodyForNode: the node stops being tracked, its body is removed from
// the simulation and destroyed, and the node forgets it. It's fatal if the node has no body.
func (pm *PhysicsManager) DestroyBodyForNode(node INode) {
	physicsNode, ok := node.(PhysicsNode)
	if !ok {
		fatal("can't destroy the physics body of node %q: %s isn't a physics node", node.Name(), nodeTypeName(node))
	}
	body := physicsNode.physicsBody()
	bodyID, character := body.handles()
	if bodyID == 0 {
		fatal("can't destroy the physics body of node %q: it has none", node.Name())
	}

	pm.mu.Lock()
	nodeID, known := pm.bodyNodes[bodyID]
	delete(pm.bodyNodes, bodyID)
	delete(pm.simulated, nodeID)
	delete(pm.moving, nodeID)
	delete(pm.characters, nodeID)
	pm.mu.Unlock()

	if !known {
		fatal("physics body %d of node %q isn't registered", bodyID, node.Name())
	}

	if character != nil {
		if err := pm.system.DestroyCharacter(character); err != nil {
			fatal("can't destroy the character of node %q: %v", node.Name(), err)
		}
	} else {
		if pm.system.IsAdded(bodyID) {
			if err := pm.system.RemoveBody(bodyID); err != nil {
				fatal("can't remove the physics body of node %q: %v", node.Name(), err)
			}
		}
		if err := pm.system.DestroyBody(bodyID); err != nil {
			fatal("can't destroy the physics body of node %q: %v", node.Name(), err)
		}
	}

	body.clearBody()

	Logger().Debug("physics body destroyed", zap.String("node", node.Name()), zap.Uint64("id", nodeID),
		zap.Uint32("body", uint32(bodyID)))
}

// recreateBodyForNode replaces the body of a spawned node, after its shape changed.
func (pm *PhysicsManager) recreateBodyForNode(node PhysicsNode) {
	if node.physicsBody().hasBody() {
		pm.DestroyBodyForNode(node)
	}
	pm.CreateBodyForNode(node)
}

// SetBodyLocationRotation moves the body of a node to the node's world location and rotation.
func (pm *PhysicsManager) SetBodyLocationRotation(node PhysicsNode) {
	bodyID, _ := node.physicsBody().handles()
	if bodyID == 0 {
		return
	}
	location, _, rotation := node.WorldMatrix().Decompose()
	if err := pm.system.SetPositionAndRotation(bodyID, toPhysicsVec(location), toPhysicsQuat(rotation)); err != nil {
		Logger().Warn("failed to move physics body", zap.String("node", node.Name()), zap.Error(err))
	}
}

// SetLinearVelocity sets the velocity of the body of a simulated, moving or character node.
func (pm *PhysicsManager) SetLinearVelocity(node PhysicsNode, velocity Vector) {
	bodyID, _ := node.physicsBody().handles()
	if bodyID == 0 {
		Logger().Warn("velocity set on a node without a physics body", zap.String("node", node.Name()))
		return
	}
	if err := pm.system.SetLinearVelocity(bodyID, toPhysicsVec(velocity)); err != nil {
		Logger().Warn("failed to set linear velocity", zap.String("node", node.Name()), zap.Error(err))
	}
}

// LinearVelocity returns the velocity of the body of a node, or the zero vector if it has none.
func (pm *PhysicsManager) LinearVelocity(node PhysicsNode) Vector {
	bodyID, _ := node.physicsBody().handles()
	if bodyID == 0 {
		return Vector{}
	}
	velocity, err := pm.system.LinearVelocity(bodyID)
	if err != nil {
		return Vector{}
	}
	return fromPhysicsVec(velocity)
}

// AddImpulse pushes the body of a simulated node.
func (pm *PhysicsManager) AddImpulse(node PhysicsNode, impulse Vector) {
	bodyID, _ := node.physicsBody().handles()
	if bodyID == 0 {
		Logger().Warn("impulse added to a node without a physics body", zap.String("node", node.Name()))
		return
	}
	if err := pm.system.AddImpulse(bodyID, toPhysicsVec(impulse)); err != nil {
		Logger().Warn("failed to add impulse", zap.String("node", node.Name()), zap.Error(err))
	}
}

// IsSupported reports whether a character node stands on something.
func (pm *PhysicsManager) IsSupported(node *CharacterBodyNode) bool {
	_, character := node.physicsBody().handles()
	if character == nil {
		return false
	}
	return pm.system.IsSupported(character)
}

// PhysicsRayHit is the node hit by CastRay.
type PhysicsRayHit struct {
	Node     INode
	Location Vector
	Normal   Vector
	// Fraction is how far along the ray the hit is, from 0 to 1.
	Fraction float64
}

// CastRay returns the closest spawned physics node the ray from from to to hits, ignoring trigger volumes and
// the given nodes.
func (pm *PhysicsManager) CastRay(from, to Vector, ignore ...INode) (PhysicsRayHit, bool) {
	ignored := make(map[uint64]bool, len(ignore))
	for _, node := range ignore {
		if id, ok := node.ID(); ok {
			ignored[id] = true
		}
	}

	hit, ok := pm.system.CastRay(toPhysicsVec(from), toPhysicsVec(to), func(id physics.BodyID, nodeID uint64) bool {
		return !ignored[nodeID]
	})
	if !ok {
		return PhysicsRayHit{}, false
	}

	node := pm.world.SpawnedNodeByID(hit.UserData)
	if node == nil {
		return PhysicsRayHit{}, false
	}
	return PhysicsRayHit{
		Node:     node,
		Location: fromPhysicsVec(hit.Position),
		Normal:   fromPhysicsVec(hit.Normal),
		Fraction: hit.Fraction,
	}, true
}

// OnBeforeNewFrame runs as many fixed sub-steps as fit in the time elapsed, up to MaxSubSteps. Each sub-step
// calls OnBeforePhysicsUpdate on the World's tickable nodes, steps the simulation, copies the results back to the
// nodes and then reports the contacts.
func (pm *PhysicsManager) OnBeforeNewFrame(deltaTime float64) {
	step := pm.settings.FixedStep
	pm.accumulator += deltaTime

	steps := 0
	for pm.accumulator >= step && steps < pm.settings.MaxSubSteps {
		pm.world.callBeforePhysicsUpdate(step)
		pm.system.Update(step)
		pm.applySimulationResults()
		pm.dispatchContacts()

		pm.accumulator -= step
		steps++
	}

	if pm.accumulator >= step {
		dropped := pm.accumulator - math.Mod(pm.accumulator, step)
		pm.accumulator -= dropped
		if !pm.warnedFallingBehind {
			pm.warnedFallingBehind = true
			Logger().Warn("physics is falling behind, dropping time", zap.Float64("seconds", dropped),
				zap.Int("max_sub_steps", pm.settings.MaxSubSteps))
		} else {
			Logger().Debug("physics is falling behind, dropping time", zap.Float64("seconds", dropped))
		}
	}
}

func (pm *PhysicsManager) applySimulationResults() {
	pm.mu.Lock()
	nodes := make([]PhysicsNode, 0, len(pm.simulated)+len(pm.moving)+len(pm.characters))
	for _, node := range pm.simulated {
		nodes = append(nodes, node)
	}
	for _, node := range pm.moving {
		nodes = append(nodes, node)
	}
	for _, node := range pm.characters {
		nodes = append(nodes, node)
	}
	pm.mu.Unlock()

	for _, node := range nodes {
		bodyID, _ := node.physicsBody().handles()
		if bodyID == 0 {
			continue
		}
		position, rotation, err := pm.system.PositionAndRotation(bodyID)
		if err != nil {
			continue
		}
		node.spatial().setWorldLocationRotation(fromPhysicsVec(position), fromPhysicsQuat(rotation))
	}
}

// Close releases the physics of the World. Every physics node must have despawned before: a body still
// tracked at this point means a node leaked it, which is fatal.
func (pm *PhysicsManager) Close() {
	pm.mu.Lock()
	if pm.isClosed {
		pm.mu.Unlock()
		return
	}
	pm.isClosed = true
	bodies, simulated, moving, characters := len(pm.bodyNodes), len(pm.simulated), len(pm.moving), len(pm.characters)
	pm.mu.Unlock()

	if bodies != 0 || simulated != 0 || moving != 0 || characters != 0 {
		fatal("physics manager closed with %d bodies still alive (%d simulated, %d moving, %d characters)",
			bodies, simulated, moving, characters)
	}
}

func toPhysicsVec(vec Vector) physics.Vec3 { return physics.Vec3{X: vec.X, Y: vec.Y, Z: vec.Z} }

func fromPhysicsVec(vec physics.Vec3) Vector { return Vector{X: vec.X, Y: vec.Y, Z: vec.Z} }

func toPhysicsQuat(q Quaternion) physics.Quat { return physics.Quat{X: q.X, Y: q.Y, Z: q.Z, W: q.W} }

func fromPhysicsQuat(q physics.Quat) Quaternion { return Quaternion{X: q.X, Y: q.Y, Z: q.Z, W: q.W} }
