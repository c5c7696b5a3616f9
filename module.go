// Package modlink is a communication substrate for independently developed
// modules living in one host process. Modules never reference each other's
// types; they exchange data and notifications only through shared artifacts
// handed out by reference:
//
//   - Cell: a named typed value with a durable initial and a volatile current value.
//   - Channel: a named typed publish/subscribe endpoint with synchronous,
//     reverse-subscription-order fan-out.
//   - Registry: a named set of currently-active instances maintained by the
//     instances themselves.
//
// A ScopeCoordinator resets every cell when a session starts, so no session's
// mutations leak into the next. The Host binds that reset to its own
// start/stop cycle.
//
// Basic usage:
//
//	host := modlink.NewHost(cfg, logger)
//	host.RegisterModule(&ScoreModule{})
//	host.RegisterModule(&HUDModule{})
//	if err := host.Run(); err != nil {
//		log.Fatal(err)
//	}
package modlink

import (
	"context"

	"github.com/GoCodeAlone/modlink/descriptor"
)

// Module is an independently developed unit of functionality. Modules never
// import each other; everything they share goes through artifacts declared
// on the host's Exchange, so one module can be removed or replaced without
// recompiling the others.
//
// Beyond Name and Init a module may implement Startable, Stoppable,
// DependencyAware and Describer. The host detects those with type assertions.
//
// A minimal module that publishes a channel and owns a cell:
//
//	type ScoreModule struct {
//		score  *modlink.Cell[int]
//		scored *modlink.Channel[int]
//	}
//
//	func (m *ScoreModule) Name() string { return "score" }
//
//	func (m *ScoreModule) Init(app modlink.Application) error {
//		var err error
//		if m.score, err = modlink.DeclareCell(app.Exchange(), "Score", 0, modlink.OwnedBy(m.Name())); err != nil {
//			return err
//		}
//		m.scored, err = modlink.DeclareChannel[int](app.Exchange(), "Scored", modlink.OwnedBy(m.Name()))
//		return err
//	}
type Module interface {
	// Name returns the unique module identifier. It is also the owner
	// recorded on artifacts the module declares, the key other modules list
	// in Dependencies, and the file name stem of its integration descriptor.
	//
	// Example: "inventory", "hud", "quest-log"
	Name() string

	// Init declares the module's artifacts on app.Exchange() and looks up the
	// artifacts it consumes. Init runs once, in dependency order, before any
	// module is started; an error aborts host initialization.
	//
	// Init should:
	//   - Declare the cells, channels and registries the module owns
	//   - Look up artifacts declared by its dependencies
	//   - Subscribe handlers that must be in place before the first session
	Init(app Application) error
}

// Application is the view of the host that modules receive during Init.
// Modules may keep it and use it later, for instance to emit events from a
// background goroutine.
type Application interface {
	// Logger returns the host logger. It is never nil.
	Logger() Logger

	// Exchange returns the catalog artifacts are declared on and looked up in.
	Exchange() *Exchange

	// Coordinator returns the scope coordinator that resets cells when a
	// session starts. Custom Resettable implementations register here.
	Coordinator() *ScopeCoordinator

	Subject
}

// Startable is implemented by modules that run something while the host is
// up: watchers, schedulers, network listeners. Start is called after the
// first session's cells were reset, in dependency order.
type Startable interface {
	// Start begins the module's runtime work. ctx is the host lifecycle
	// context and is cancelled when the host stops. Start should return
	// promptly and move long-running work to goroutines.
	//
	// Example:
	//	func (m *WatchModule) Start(ctx context.Context) error {
	//		go m.watch(ctx)
	//		return nil
	//	}
	Start(ctx context.Context) error
}

// Stoppable is implemented by modules that hold resources to release on
// shutdown. Stop is called in reverse dependency order, so a module stops
// before the modules it depends on.
type Stoppable interface {
	// Stop shuts the module down. ctx carries the host stop timeout; Stop
	// should return once it expires. A returned error is logged and
	// collected, and the remaining modules are still stopped.
	Stop(ctx context.Context) error
}

// DependencyAware modules are initialized after the modules they name.
// Dependencies must match Name() exactly. A missing dependency fails Init,
// and so does a cycle, whose error names the modules on it.
type DependencyAware interface {
	// Dependencies returns the names of modules that must be initialized
	// before this one.
	//
	// Example:
	//	func (m *HUDModule) Dependencies() []string {
	//		return []string{"score", "inventory"}
	//	}
	Dependencies() []string
}

// Describer modules publish their own integration descriptor. Modules that
// do not implement it are described from what they declared on the Exchange,
// which leaves the Assembly and Examples sections empty.
type Describer interface {
	// Describe returns the module's descriptor. The host treats the result
	// as read-only.
	Describe() *descriptor.Descriptor
}
