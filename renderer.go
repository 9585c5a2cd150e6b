package stage3d

import (
	"sync"

	"go.uber.org/zap"
)

// Renderer is what the scene graph needs from whatever draws the Worlds.
type Renderer interface {
	OnWindowSizeChanged(width, height int)
	// WaitForGPUWorkToFinish blocks until the renderer no longer uses any resource of the current Worlds.
	WaitForGPUWorkToFinish()
	RenderSlots() *RenderSlotPool
}

// RenderSlot is a handle to per-object renderer data (a slot in a GPU buffer, for example). Slot 0 is never handed out.
type RenderSlot uint32

// RenderSlotPool hands out render slots to spawned renderable nodes, reusing released slots.
type RenderSlotPool struct {
	mu    sync.Mutex
	next  RenderSlot
	free  []RenderSlot
	inUse Set[RenderSlot]
}

func NewRenderSlotPool() *RenderSlotPool {
	return &RenderSlotPool{next: 1, inUse: newSet[RenderSlot]()}
}

// Request returns a free slot.
func (pool *RenderSlotPool) Request() RenderSlot {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	var slot RenderSlot
	if n := len(pool.free); n > 0 {
		slot = pool.free[n-1]
		pool.free = pool.free[:n-1]
	} else {
		slot = pool.next
		pool.next++
	}
	pool.inUse.Add(slot)
	return slot
}

// Release returns a slot to the pool. Releasing a slot that isn't in use is logged and ignored.
func (pool *RenderSlotPool) Release(slot RenderSlot) {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	if !pool.inUse.Contains(slot) {
		Logger().Warn("released a render slot that isn't in use", zap.Uint32("slot", uint32(slot)))
		return
	}
	pool.inUse.Remove(slot)
	pool.free = append(pool.free, slot)
}

// InUseCount returns how many slots are currently handed out.
func (pool *RenderSlotPool) InUseCount() int {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	return len(pool.inUse)
}
