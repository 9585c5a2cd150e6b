package stage3d

import (
	"fmt"
	"os"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// ScriptNode is a SpatialNode whose hooks are written in Lua. The script runs in its own Lua state, created when
// the node spawns and closed when it despawns, and may define these global functions:
//
//	on_spawning()
//	on_despawning()
//	on_before_new_frame(dt)   -- the node is called every frame if this exists
//
// The script sees the node through the global table "node": name(), location(), set_location(x, y, z),
// move(x, y, z), rotate(ax, ay, az, angle), prop(name), set_prop(name, value) and destroy(). log(message) writes
// to the engine log. Script errors are logged and don't stop the game.
type ScriptNode struct {
	*SpatialNode

	Source string

	state        *lua.LState
	calling      int  // nesting depth of calls into the script
	closePending bool // despawned from inside the script; close once the call returns
}

// NewScriptNode creates a ScriptNode running source.
func NewScriptNode(name, source string) *ScriptNode {
	node := &ScriptNode{SpatialNode: &SpatialNode{Node: &Node{}}, Source: source}
	node.initSpatial(name, node)
	return node
}

// NewScriptNodeFromFile creates a ScriptNode running the Lua file at path.
func NewScriptNodeFromFile(name, path string) (*ScriptNode, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading script %q: %w", path, err)
	}
	return NewScriptNode(name, string(source)), nil
}

func (node *ScriptNode) OnSpawning() {
	node.state = lua.NewState()
	node.registerAPI()
	if err := node.state.DoString(node.Source); err != nil {
		Logger().Error("script failed to load", zap.String("node", node.Name()), zap.Error(err))
	}
	if node.hasFunction("on_before_new_frame") {
		node.SetIsCalledEveryFrame(true)
	}
	node.call("on_spawning")
	node.SpatialNode.OnSpawning()
}

func (node *ScriptNode) OnDespawning() {
	node.SpatialNode.OnDespawning()
	node.call("on_despawning")
	if node.calling > 0 {
		node.closePending = true
		return
	}
	node.closeState()
}

func (node *ScriptNode) closeState() {
	if node.state != nil {
		node.state.Close()
		node.state = nil
	}
	node.closePending = false
}

func (node *ScriptNode) OnBeforeNewFrame(deltaTime float64) {
	node.call("on_before_new_frame", lua.LNumber(deltaTime))
	node.SpatialNode.OnBeforeNewFrame(deltaTime)
}

func (node *ScriptNode) hasFunction(name string) bool {
	if node.state == nil {
		return false
	}
	_, ok := node.state.GetGlobal(name).(*lua.LFunction)
	return ok
}

// call calls a global Lua function if the script defines it.
func (node *ScriptNode) call(name string, args ...lua.LValue) {
	if !node.hasFunction(name) {
		return
	}
	node.calling++
	err := node.state.CallByParam(lua.P{
		Fn:      node.state.GetGlobal(name),
		NRet:    0,
		Protect: true,
	}, args...)
	node.calling--
	if node.calling == 0 && node.closePending {
		node.closeState()
	}
	if err != nil {
		Logger().Error("script function failed", zap.String("node", node.Name()), zap.String("function", name), zap.Error(err))
	}
}

func (node *ScriptNode) registerAPI() {
	L := node.state

	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		Logger().Info(L.CheckString(1), zap.String("node", node.Name()))
		return 0
	}))

	api := L.NewTable()
	L.SetFuncs(api, map[string]lua.LGFunction{
		"name": func(L *lua.LState) int {
			L.Push(lua.LString(node.Name()))
			return 1
		},
		"location": func(L *lua.LState) int {
			location := node.RelativeLocation()
			L.Push(lua.LNumber(location.X))
			L.Push(lua.LNumber(location.Y))
			L.Push(lua.LNumber(location.Z))
			return 3
		},
		"set_location": func(L *lua.LState) int {
			node.SetRelativeLocation(checkVector(L, 1))
			return 0
		},
		"move": func(L *lua.LState) int {
			node.Move(checkVector(L, 1))
			return 0
		},
		"rotate": func(L *lua.LState) int {
			node.Rotate(checkVector(L, 1), float64(L.CheckNumber(4)))
			return 0
		},
		"prop": func(L *lua.LState) int {
			value, ok := node.Properties().Get(L.CheckString(1))
			if !ok {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(toLuaValue(value))
			return 1
		},
		"set_prop": func(L *lua.LState) int {
			name := L.CheckString(1)
			var err error
			switch value := L.CheckAny(2).(type) {
			case lua.LBool:
				err = node.Properties().Set(name, bool(value))
			case lua.LNumber:
				err = node.Properties().Set(name, float64(value))
			case lua.LString:
				err = node.Properties().Set(name, string(value))
			default:
				err = fmt.Errorf("property %q: unsupported Lua type %s", name, value.Type())
			}
			if err != nil {
				L.RaiseError("%s", err.Error())
			}
			return 0
		},
		"destroy": func(L *lua.LState) int {
			node.UnsafeDetachFromParentAndDespawn()
			return 0
		},
	})
	L.SetGlobal("node", api)
}

func checkVector(L *lua.LState, first int) Vector {
	return Vector{
		X: float64(L.CheckNumber(first)),
		Y: float64(L.CheckNumber(first + 1)),
		Z: float64(L.CheckNumber(first + 2)),
	}
}

func toLuaValue(value any) lua.LValue {
	switch v := value.(type) {
	case bool:
		return lua.LBool(v)
	case string:
		return lua.LString(v)
	case float64:
		return lua.LNumber(v)
	case int:
		return lua.LNumber(v)
	}
	return lua.LString(fmt.Sprint(value))
}

func (node *ScriptNode) encodeFields(fields map[string]any) {
	node.SpatialNode.encodeFields(fields)
	fields["source"] = node.Source
}

func (node *ScriptNode) decodeFields(fields *fieldReader) {
	node.SpatialNode.decodeFields(fields)
	fields.string("source", &node.Source)
}
