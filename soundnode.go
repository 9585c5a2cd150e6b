package stage3d

// SoundManager plays the sounds of SoundNodes. The GameManager calls OnBeforeNewFrame once per frame with the
// active camera of the first World that has one (nil if none) so positional sounds can follow the listener.
type SoundManager interface {
	OnSoundNodeSpawned(node *SoundNode)
	OnSoundNodeDespawned(node *SoundNode)
	PlaySound(node *SoundNode)
	StopSound(node *SoundNode)
	OnBeforeNewFrame(listener Spatial)
}

// Sound channels SoundNodes can play on; each has its own volume.
const (
	SoundChannelEffects = "effects"
	SoundChannelMusic   = "music"
	SoundChannelVoice   = "voice"
)

// SoundNode plays a sound known to the SoundManager by name. A node with a MaxDistance above zero is positional:
// its volume and panning depend on where it is relative to the listener.
type SoundNode struct {
	*SpatialNode

	Sound       string
	Channel     string
	Volume      float64
	Loop        bool
	AutoPlay    bool // Start playing when spawned.
	MaxDistance float64
}

// NewSoundNode creates a SoundNode playing sound on the effects channel at full volume.
func NewSoundNode(name, sound string) *SoundNode {
	node := &SoundNode{
		SpatialNode: &SpatialNode{Node: &Node{}},
		Sound:       sound,
		Channel:     SoundChannelEffects,
		Volume:      1,
	}
	node.initSpatial(name, node)
	return node
}

func (node *SoundNode) soundManager() SoundManager {
	world := node.World()
	if world == nil {
		return nil
	}
	return world.SoundManager()
}

func (node *SoundNode) OnSpawning() {
	if manager := node.soundManager(); manager != nil {
		manager.OnSoundNodeSpawned(node)
	}
	node.SpatialNode.OnSpawning()
}

func (node *SoundNode) OnDespawning() {
	node.SpatialNode.OnDespawning()
	if manager := node.soundManager(); manager != nil {
		manager.OnSoundNodeDespawned(node)
	}
}

// Play starts (or restarts) the sound. It does nothing while the node isn't spawned.
func (node *SoundNode) Play() {
	if manager := node.soundManager(); manager != nil && node.IsSpawned() {
		manager.PlaySound(node)
	}
}

// Stop stops the sound.
func (node *SoundNode) Stop() {
	if manager := node.soundManager(); manager != nil {
		manager.StopSound(node)
	}
}
