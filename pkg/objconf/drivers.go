package objconf

import (
	pkgerrors "github.com/pkg/errors"

	"github.com/arkdb/objcopy/pkg/storage"
)

// openBadger is the driver for Spec.Driver == "badger". Params must carry
// "data-dir"; "in-memory" set to any non-empty value runs Badger without
// touching disk (handy for config-file-driven smoke tests).
func openBadger(spec Spec) (*storage.BadgerStorage, error) {
	opts := storage.BadgerOptions{DataDir: spec.Params["data-dir"]}
	if spec.Params["in-memory"] != "" {
		opts.InMemory = true
	}
	if opts.DataDir == "" && !opts.InMemory {
		return nil, pkgerrors.Errorf("objconf: badger section missing required %q parameter", "data-dir")
	}
	b, err := storage.OpenBadger(opts)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "objconf: open badger storage")
	}
	return b, nil
}

// openMem is the driver for Spec.Driver == "memory". It ignores Params;
// it exists so declarative and YAML configs can request the in-memory
// backend explicitly (mainly for tests and demos), without a data
// directory on disk.
func openMem(spec Spec) (*storage.MemStorage, error) {
	return storage.NewMemStorage(), nil
}

// openSpec dispatches on spec.Driver to the concrete backend, returning it
// as the pair of interfaces a Result needs. Every backend in this package
// implements both SourceStorage and DestinationStorage, so both are always
// populated from the single opened instance.
func openSpec(spec Spec) (storage.SourceStorage, storage.DestinationStorage, error) {
	switch spec.Driver {
	case "badger", "":
		b, err := openBadger(spec)
		if err != nil {
			return nil, nil, err
		}
		return b, b, nil
	case "memory":
		m, err := openMem(spec)
		if err != nil {
			return nil, nil, err
		}
		return m, m, nil
	default:
		return nil, nil, pkgerrors.Errorf("objconf: unknown storage driver %q", spec.Driver)
	}
}
