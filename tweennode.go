package stage3d

import (
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
	"go.uber.org/zap"
)

var easings = map[string]ease.TweenFunc{
	"linear":       ease.Linear,
	"in_quad":      ease.InQuad,
	"out_quad":     ease.OutQuad,
	"in_out_quad":  ease.InOutQuad,
	"in_cubic":     ease.InCubic,
	"out_cubic":    ease.OutCubic,
	"in_out_cubic": ease.InOutCubic,
	"in_out_sine":  ease.InOutSine,
	"out_bounce":   ease.OutBounce,
	"out_elastic":  ease.OutElastic,
}

// TweenNode moves its parent, which must be spatial, from wherever the parent is when the tween starts to Target
// (relative location) over Duration seconds. It starts ticking once spawned and destroys itself when done.
type TweenNode struct {
	*Node

	Target   Vector
	Duration float64
	// Easing names the easing curve: linear, in_quad, out_quad, in_out_quad, in_cubic, out_cubic, in_out_cubic,
	// in_out_sine, out_bounce or out_elastic. Unknown names ease linearly.
	Easing string

	OnFinished func(tween *TweenNode, parent Spatial)

	axes [3]*gween.Tween
}

// NewTweenNode creates a linear TweenNode.
func NewTweenNode(name string, target Vector, duration float64) *TweenNode {
	node := &TweenNode{Node: &Node{}, Target: target, Duration: duration, Easing: "linear"}
	node.init(name, node)
	node.SetIsCalledEveryFrame(true)
	return node
}

func (node *TweenNode) OnBeforeNewFrame(deltaTime float64) {
	parent, ok := node.Parent().(Spatial)
	if !ok {
		Logger().Warn("tween node has no spatial parent to move", zap.String("node", node.Name()))
		node.UnsafeDetachFromParentAndDespawn()
		return
	}

	if node.axes[0] == nil {
		easing, known := easings[node.Easing]
		if !known {
			easing = ease.Linear
		}
		from := parent.RelativeLocation()
		duration := float32(node.Duration)
		node.axes[0] = gween.New(float32(from.X), float32(node.Target.X), duration, easing)
		node.axes[1] = gween.New(float32(from.Y), float32(node.Target.Y), duration, easing)
		node.axes[2] = gween.New(float32(from.Z), float32(node.Target.Z), duration, easing)
	}

	var values [3]float64
	finished := true
	for i, axis := range node.axes {
		value, done := axis.Update(float32(deltaTime))
		values[i] = float64(value)
		finished = finished && done
	}
	if finished {
		// Land exactly on the target rather than on its float32 rounding.
		parent.SetRelativeLocation(node.Target)
	} else {
		parent.SetRelativeLocation(Vector{X: values[0], Y: values[1], Z: values[2]})
	}

	node.Node.OnBeforeNewFrame(deltaTime)

	if finished {
		if node.OnFinished != nil {
			node.OnFinished(node, parent)
		}
		if node.IsSpawned() {
			node.UnsafeDetachFromParentAndDespawn()
		}
	}
}

func (node *TweenNode) encodeFields(fields map[string]any) {
	node.Node.encodeFields(fields)
	fields["target"] = encodeVector(node.Target)
	fields["duration"] = node.Duration
	fields["easing"] = node.Easing
}

func (node *TweenNode) decodeFields(fields *fieldReader) {
	node.Node.decodeFields(fields)
	fields.vector("target", &node.Target)
	fields.float("duration", &node.Duration)
	fields.string("easing", &node.Easing)
}
