// Package component runs user logic as RT components: named units with data
// ports that move through a fixed lifecycle and are driven periodically by an
// execution context.
//
// # Lifecycle
//
// A Component starts CREATED. Initialize moves it to INACTIVE, Activate to
// ACTIVE, and Deactivate back to INACTIVE. A failing callback while ACTIVE
// moves it to ERROR, where Reset returns it to INACTIVE:
//
//	CREATED --Initialize--> INACTIVE --Activate--> ACTIVE
//	                           ^  <---Deactivate---   |
//	                           |                      | error / Error()
//	                           +------Reset------- ERROR
//
// Finalize releases a component that is not ACTIVE and disconnects its ports.
// Any operation invoked from the wrong state fails with ErrInvalidState and
// leaves the component unchanged.
//
// User code implements Logic; embed NopLogic to override only the callbacks
// needed:
//
//	type counter struct {
//		component.NopLogic
//		out *port.OutPort[datatype.TimedLong]
//		n   int32
//	}
//
//	func (c *counter) OnExecute(component.ECID) error {
//		c.n++
//		c.out.Write(datatype.TimedLong{Data: c.n})
//		return nil
//	}
//
// # Execution contexts
//
// ExecutionContext registers a periodic task on the runtime timer.
// Each period it calls Execute on every attached component: ACTIVE
// components run OnExecute then OnStateUpdate, components in ERROR run
// OnError. Start and Stop run OnStartup and OnShutdown, and SetRate runs
// OnRateChanged.
//
// # State machines
//
// WithMachine attaches an fsm.Machine. The component observes every machine
// hook and forwards it to the state machine listeners; while ACTIVE, each
// Execute also runs one machine event chosen by the configured selector, for
// example a csp.Manager.
//
// # Listeners and logs
//
// Listeners registers callbacks around every lifecycle action and machine
// hook. Lifecycle logs go to slog and, with WithLogPublisher, to NATS on
// LogSubject(instance, component) as JSON LogEntry records.
//
// # Registry
//
// Registry maps component type names to factories and keeps the created
// instances by name. Factories receive raw JSON configuration, which is
// checked by ValidateFactoryConfig first; SafeUnmarshal decodes it.
package component
