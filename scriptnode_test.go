package stage3d

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const moverScript = `
function on_spawning()
  node.set_prop("spawned", true)
end

function on_before_new_frame(dt)
  node.move(node.prop("speed") * dt, 0, 0)
  local x, y, z = node.location()
  if x >= 1 then
    node.set_prop("arrived", node.name())
    node.destroy()
  end
end
`

func TestScriptsDriveTheirNode(t *testing.T) {
	world := NewWorld(nil)
	defer world.Destroy()

	script := NewScriptNode("Mover", moverScript)
	require.NoError(t, script.Properties().Set("speed", 30.0))
	world.RootNode().AddChild(script)

	assert.True(t, script.Properties().Bool("spawned"))
	assert.True(t, script.IsCalledEveryFrame(), "defining on_before_new_frame turns ticking on")

	world.TickTickableNodes(1.0 / 60)
	assert.InDelta(t, 0.5, script.RelativeLocation().X, 1e-9)

	world.TickTickableNodes(1.0 / 60)
	assert.Equal(t, "Mover", script.Properties().String("arrived"))
	assert.True(t, script.IsDestroyed(), "node.destroy() from inside the script")
	assert.Nil(t, script.state, "the Lua state is closed once the call returns")
	assert.Equal(t, 1, world.TotalSpawnedNodeCount())
}

func TestScriptErrorsAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	world := NewWorld(nil)
	defer world.Destroy()

	broken := NewScriptNode("Broken", "this is not lua")
	world.RootNode().AddChild(broken)
	assert.Equal(t, 1, logs.FilterMessage("script failed to load").Len())

	failing := NewScriptNode("Failing", `function on_spawning() error("boom") end`)
	world.RootNode().AddChild(failing)
	assert.Equal(t, 1, logs.FilterMessage("script function failed").Len())
	assert.True(t, failing.IsSpawned(), "a failing script doesn't stop the node")

	badProp := NewScriptNode("BadProp", `function on_spawning() node.set_prop("t", {}) end`)
	world.RootNode().AddChild(badProp)
	assert.Equal(t, 2, logs.FilterMessage("script function failed").Len())
	assert.False(t, badProp.Properties().Has("t"))
}

func TestScriptsCloseTheirStateOnDespawn(t *testing.T) {
	world := NewWorld(nil)
	defer world.Destroy()

	script := NewScriptNode("Script", `function on_despawning() log("bye") end`)
	world.RootNode().AddChild(script)
	require.NotNil(t, script.state)
	assert.False(t, script.IsCalledEveryFrame())

	holder := NewNode("Holder")
	defer holder.UnsafeDetachFromParentAndDespawn()
	holder.AddChild(script)
	assert.Nil(t, script.state)
}

func TestLoadingScriptsFromFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spin.lua")
	require.NoError(t, os.WriteFile(path, []byte(`function on_spawning() node.rotate(0, 1, 0, 0) end`), 0o644))

	script, err := NewScriptNodeFromFile("Spin", path)
	require.NoError(t, err)
	defer script.UnsafeDetachFromParentAndDespawn()
	assert.Contains(t, script.Source, "node.rotate")

	_, err = NewScriptNodeFromFile("Missing", filepath.Join(t.TempDir(), "missing.lua"))
	assert.Error(t, err)
}
