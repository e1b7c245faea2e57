package plugin

import (
	"context"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultLuaTimeout bounds one run of a main.lua extend hook.
const DefaultLuaTimeout = 5 * time.Second

// LuaExtension runs a main.lua entry point. The script defines
//
//	function extend(md)
//	  md.add_pattern("draw_func", "(@draw_func) (\\d*) (\\d*) (.*)", {
//	    attrs = { class = "func_plugin", width = "$2", height = "$3", ["function"] = "$4" },
//	  })
//	end
//
// add_pattern takes the rule name, the expression and an optional table with
// tag, attrs, text and trigger, and returns whether the rule was new.
type LuaExtension struct {
	entry   string
	timeout time.Duration
}

// NewLuaLoader reads main.lua entry points, running each hook for at most timeout.
func NewLuaLoader(timeout time.Duration) Loader {
	if timeout <= 0 {
		timeout = DefaultLuaTimeout
	}
	return LoaderFunc(func(entry string) (Extension, error) {
		return &LuaExtension{entry: entry, timeout: timeout}, nil
	})
}

func (e *LuaExtension) Extend(ctx context.Context, engine Engine) error {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	openSafeLibraries(L)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	L.SetContext(ctx)

	if err := L.DoFile(e.entry); err != nil {
		return err
	}
	fn, ok := L.GetGlobal("extend").(*lua.LFunction)
	if !ok {
		return fmt.Errorf("%s does not define function extend(md)", e.entry)
	}
	md := L.NewTable()
	L.SetField(md, "add_pattern", L.NewFunction(func(L *lua.LState) int {
		return addPattern(L, md, engine)
	}))
	return L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, md)
}

func addPattern(L *lua.LState, md *lua.LTable, engine Engine) int {
	first := 1
	if L.Get(1) == md {
		// called as md:add_pattern(...)
		first = 2
	}
	spec := PatternSpec{
		Name:    L.CheckString(first),
		Pattern: L.CheckString(first + 1),
	}
	if opts := L.OptTable(first+2, nil); opts != nil {
		if v, ok := opts.RawGetString("tag").(lua.LString); ok {
			tag := string(v)
			spec.Tag = &tag
		}
		spec.Text = lua.LVAsString(opts.RawGetString("text"))
		spec.Trigger = lua.LVAsString(opts.RawGetString("trigger"))
		if attrs, ok := opts.RawGetString("attrs").(*lua.LTable); ok {
			spec.Attrs = make(map[string]string)
			attrs.ForEach(func(k, v lua.LValue) {
				spec.Attrs[lua.LVAsString(k)] = lua.LVAsString(v)
			})
		}
	}
	p, err := spec.Build()
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(lua.LBool(engine.Install(p)))
	return 1
}

// openSafeLibraries opens the libraries a pattern definition needs and nothing
// that reaches the filesystem or the OS.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, name := range []string{"dofile", "loadfile", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
}
