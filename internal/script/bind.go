package script

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dop251/goja"

	"github.com/roach88/hostsim/internal/host"
)

// bind installs the globals.
func (r *Runtime) bind() {
	r.set(r.vm.GlobalObject(), "system", r.systemObject())
	r.set(r.vm.GlobalObject(), "world", r.worldObject())
	r.set(r.vm.GlobalObject(), "console", r.consoleObject())
}

// set is Object.Set for bindings, which only fails on a programming error.
func (r *Runtime) set(obj *goja.Object, name string, value any) {
	if err := obj.Set(name, value); err != nil {
		panic(fmt.Sprintf("script: bind %s: %v", name, err))
	}
}

func (r *Runtime) systemObject() *goja.Object {
	sys := r.env.System
	obj := r.vm.NewObject()

	r.set(obj, "beforeEvents", r.eventsObject("system", host.Before))
	r.set(obj, "afterEvents", r.eventsObject("system", host.After))

	r.set(obj, "run", func(call goja.FunctionCall) goja.Value {
		h, err := sys.Run(r.timerCallback(call.Argument(0), "system.run"))
		r.throw(err)
		return r.vm.ToValue(int64(h))
	})
	r.set(obj, "runTimeout", func(call goja.FunctionCall) goja.Value {
		cb := r.timerCallback(call.Argument(0), "system.runTimeout")
		h, err := sys.RunTimeout(cb, call.Argument(1).ToInteger())
		r.throw(err)
		return r.vm.ToValue(int64(h))
	})
	r.set(obj, "runInterval", func(call goja.FunctionCall) goja.Value {
		cb := r.timerCallback(call.Argument(0), "system.runInterval")
		h, err := sys.RunInterval(cb, call.Argument(1).ToInteger())
		r.throw(err)
		return r.vm.ToValue(int64(h))
	})
	r.set(obj, "clearRun", func(call goja.FunctionCall) goja.Value {
		sys.ClearRun(host.RunHandle(call.Argument(0).ToInteger()))
		return goja.Undefined()
	})
	r.set(obj, "sendScriptEvent", func(call goja.FunctionCall) goja.Value {
		r.throw(sys.SendScriptEvent(call.Argument(0).String(), call.Argument(1).String()))
		return goja.Undefined()
	})

	getter := r.vm.ToValue(func(goja.FunctionCall) goja.Value {
		return r.vm.ToValue(sys.CurrentTick())
	})
	if err := obj.DefineAccessorProperty("currentTick", getter, nil, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		panic(fmt.Sprintf("script: bind currentTick: %v", err))
	}
	return obj
}

func (r *Runtime) timerCallback(v goja.Value, what string) func() error {
	fn := r.callable(v, what)
	return func() error {
		_, err := fn(goja.Undefined())
		return r.fromJS(err)
	}
}

func (r *Runtime) worldObject() *goja.Object {
	obj := r.vm.NewObject()

	r.set(obj, "beforeEvents", r.eventsObject("world", host.Before))
	r.set(obj, "afterEvents", r.eventsObject("world", host.After))

	r.set(obj, "sendMessage", func(call goja.FunctionCall) goja.Value {
		parts, err := messageParts(call.Argument(0).Export())
		if err != nil {
			panic(r.vm.NewTypeError("world.sendMessage: " + err.Error()))
		}
		r.throw(r.env.World.SendMessage(parts...))
		return goja.Undefined()
	})
	return obj
}

// messageParts converts an exported JavaScript message: a string, a raw
// message object, or an array of either.
func messageParts(v any) ([]host.MessagePart, error) {
	switch m := v.(type) {
	case string:
		return []host.MessagePart{host.Text(m)}, nil
	case map[string]any:
		raw, err := rawMessage(m)
		if err != nil {
			return nil, err
		}
		return []host.MessagePart{raw}, nil
	case []any:
		var parts []host.MessagePart
		for _, elem := range m {
			p, err := messageParts(elem)
			if err != nil {
				return nil, err
			}
			parts = append(parts, p...)
		}
		return parts, nil
	default:
		return nil, fmt.Errorf("message must be a string, a raw message or an array of them, got %T", v)
	}
}

func rawMessage(m map[string]any) (host.RawMessage, error) {
	var raw host.RawMessage
	data, err := json.Marshal(m)
	if err != nil {
		return raw, fmt.Errorf("raw message: %w", err)
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return raw, fmt.Errorf("raw message: %w", err)
	}
	return raw, nil
}

func (r *Runtime) consoleObject() *goja.Object {
	obj := r.vm.NewObject()
	levels := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"log":   slog.LevelInfo,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for name, level := range levels {
		r.set(obj, name, func(call goja.FunctionCall) goja.Value {
			args := make([]string, len(call.Arguments))
			for i, a := range call.Arguments {
				args[i] = a.String()
			}
			r.logger.Log(context.Background(), level, strings.Join(args, " "),
				"env", r.env.ID(),
				"source", "console."+name,
			)
			return goja.Undefined()
		})
	}
	return obj
}

// eventsObject exposes one beforeEvents or afterEvents namespace. Signals
// are resolved on first property access, so any event name works.
func (r *Runtime) eventsObject(namespace string, kind host.Kind) *goja.Object {
	return r.vm.NewDynamicObject(&eventsNamespace{
		r:       r,
		prefix:  namespace + "." + kind.String() + ".",
		signals: make(map[string]*goja.Object),
	})
}

type eventsNamespace struct {
	r       *Runtime
	prefix  string
	signals map[string]*goja.Object
}

func (n *eventsNamespace) Get(key string) goja.Value {
	if obj, ok := n.signals[key]; ok {
		return obj
	}
	sig, err := n.r.env.Signal(n.prefix + key)
	if err != nil {
		return goja.Undefined()
	}
	obj := n.r.signalObject(sig)
	n.signals[key] = obj
	return obj
}

func (n *eventsNamespace) Set(string, goja.Value) bool { return false }
func (n *eventsNamespace) Has(key string) bool         { return key != "" }
func (n *eventsNamespace) Delete(string) bool          { return false }

func (n *eventsNamespace) Keys() []string {
	keys := make([]string, 0, len(n.signals))
	for k := range n.signals {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// signalObject exposes subscribe and unsubscribe for one signal. subscribe
// returns the callback, as the host API does.
func (r *Runtime) signalObject(sig host.AnySignal) *goja.Object {
	obj := r.vm.NewObject()
	path := sig.Name()

	r.set(obj, "subscribe", func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		fn := r.callable(arg, path+".subscribe")
		id, err := sig.SubscribeAny(func(payload any) error {
			_, err := fn(goja.Undefined(), r.payload(payload))
			return r.fromJS(err)
		})
		if id != 0 {
			r.subs[path] = append(r.subs[path], jsSubscription{fn: arg.ToObject(r.vm), id: id})
		}
		r.throw(err)
		return arg
	})

	r.set(obj, "unsubscribe", func(call goja.FunctionCall) goja.Value {
		// Anything that is not a subscribed function is simply not found.
		fn, _ := call.Argument(0).(*goja.Object)
		subs := r.subs[path]
		i := -1
		if fn != nil {
			i = slices.IndexFunc(subs, func(s jsSubscription) bool { return s.fn == fn })
		}

		var id host.Subscription
		if i >= 0 {
			id = subs[i].id
		}
		// Unknown functions still go through the guard.
		r.throw(sig.Unsubscribe(id))
		if i >= 0 {
			r.subs[path] = slices.Delete(subs, i, i+1)
		}
		return goja.Undefined()
	})
	return obj
}

// payload converts a signal payload to its JavaScript form.
func (r *Runtime) payload(p any) goja.Value {
	switch ev := p.(type) {
	case host.ScriptEventCommandMessageAfterEvent:
		obj := r.vm.NewObject()
		r.set(obj, "id", ev.ID)
		r.set(obj, "message", ev.Message)
		r.set(obj, "sourceType", string(ev.SourceType))
		return obj
	case host.StartupEvent:
		return r.registries(ev.BlockComponentRegistry, ev.ItemComponentRegistry)
	case host.WorldLoadAfterEvent:
		return r.registries(ev.BlockComponentRegistry, ev.ItemComponentRegistry)
	case host.EventData:
		return r.vm.ToValue(map[string]any(ev))
	default:
		return r.vm.ToValue(p)
	}
}

func (r *Runtime) registries(block, item *host.ComponentRegistry) *goja.Object {
	obj := r.vm.NewObject()
	r.set(obj, "blockComponentRegistry", r.registryObject(block))
	r.set(obj, "itemComponentRegistry", r.registryObject(item))
	return obj
}

func (r *Runtime) registryObject(reg *host.ComponentRegistry) *goja.Object {
	obj := r.vm.NewObject()
	r.set(obj, "registerCustomComponent", func(call goja.FunctionCall) goja.Value {
		r.throw(reg.RegisterCustomComponent(call.Argument(0).String(), call.Argument(1).Export()))
		return goja.Undefined()
	})
	return obj
}
