// Package componentregistry registers the bundled component types.
package componentregistry

import (
	"errors"

	"github.com/OpenRTM/RTM-Tutorial-sub001/component"
	pkgerrors "github.com/OpenRTM/RTM-Tutorial-sub001/errors"
	"github.com/OpenRTM/RTM-Tutorial-sub001/input/sequence"
	"github.com/OpenRTM/RTM-Tutorial-sub001/output/file"
	"github.com/OpenRTM/RTM-Tutorial-sub001/processor/gain"
	"github.com/OpenRTM/RTM-Tutorial-sub001/storage/objectstore"
)

// Register registers every bundled component type with the provided registry:
//   - sequence-out, a source writing an increasing TimedLong sequence
//   - gain, a processor scaling TimedLong samples
//   - file-in, a sink recording TimedLong samples to a file
//   - objectstore-in, a sink archiving TimedLong batches to a JetStream object store
func Register(registry *component.Registry) error {
	// Nil registry is a programming error (fatal), not invalid input
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	if err := sequence.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "sequence source registration")
	}

	if err := gain.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "gain processor registration")
	}

	if err := file.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "file sink registration")
	}

	if err := objectstore.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "object store sink registration")
	}

	return nil
}
