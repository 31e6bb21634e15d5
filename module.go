// Package flowkernel provides a module dataflow graph and its concurrent
// execution kernel.
//
// Independently implemented processing units (modules) declare typed input
// and output connectors, are added to a Container, get wired together and then
// run concurrently, one goroutine per module. Outputs publish immutable
// snapshots that every connected input observes (last value wins). Lifecycle
// transitions and connection changes are broadcast through the container's
// notifier registry and as CloudEvents to registered observers, and progress of
// all modules is aggregated in a tree of progress combiners.
//
// Basic usage:
//
//	factory := flowkernel.NewFactory()
//	factory.Register("scale", "multiplies numbers", NewScale)
//	k, err := flowkernel.NewKernel(cfg, logger, flowkernel.WithFactory(factory))
//	if err != nil {
//		log.Fatal(err)
//	}
//	_ = k.Start(ctx)
//	src, _ := k.CreateModule("constant")
//	dst, _ := k.CreateModule("scale")
//	_ = k.Connect(src.Handle(), "out", dst.Handle(), "in")
package flowkernel

import "context"

// Implementation is the behaviour of a module. Module authors implement it and
// register a Constructor for it with a Factory.
//
// Setup declares the connectors and properties of the module; it runs once
// when the module instance is created, before the module is added to a
// container. Main is the module body. It runs on its own goroutine after the
// module was added to a container and must:
//   - call m.Ready() once its initialization is done
//   - loop on m.Wait(ctx), reacting to new input data or property changes
//   - return as soon as m.ShutdownRequested() reports true
//
// Example:
//
//	func (s *Scale) Main(ctx context.Context, m *flowkernel.Module) error {
//		m.Ready()
//		for !m.ShutdownRequested() {
//			if v, ok := s.in.Get(); ok && s.in.Updated() {
//				s.in.Handled()
//				s.out.Update(v * s.factor())
//			}
//			if err := m.Wait(ctx); err != nil {
//				return nil
//			}
//		}
//		return nil
//	}
//
// A returned error or a panic marks the module as crashed; it does not affect
// any other module.
type Implementation interface {
	Setup(m *Module) error
	Main(ctx context.Context, m *Module) error
}

// Constructor creates a fresh Implementation. Factories call it once per module
// instance, prototypes are never shared between instances.
type Constructor func() Implementation

// DataChangeNotifiee is an optional interface for implementations that want to
// react to new data on any of their inputs without polling each input.
// NotifyDataChange runs on the goroutine of the producing module and must not
// block.
type DataChangeNotifiee interface {
	NotifyDataChange(input *InputConnector, output *OutputConnector)
}

// ConnectionNotifiee is an optional interface for implementations that track
// the connections of their connectors. here is always a connector of the
// notified module.
type ConnectionNotifiee interface {
	NotifyConnectionEstablished(here, there Connector)
	NotifyConnectionClosed(here, there Connector)
}
