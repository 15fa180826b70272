package application

import (
	"github.com/vk/metalus/internal/errs"
	"github.com/vk/metalus/internal/pipeline"
)

// DriverParams is the driver's recognized configuration surface. The
// three fields correspond to the reserved globals that Build strips from
// every final context; Load does not seed them as globals.
type DriverParams struct {
	ApplicationJSON string
	ApplicationPath string
	Loader          string
}

// FromGlobals extracts the driver surface out of a raw parameter map.
func FromGlobals(params map[string]string) DriverParams {
	return DriverParams{
		ApplicationJSON: params[pipeline.GlobalApplicationJSON],
		ApplicationPath: params[pipeline.GlobalApplicationPath],
		Loader:          params[pipeline.GlobalApplicationLoader],
	}
}

// Load resolves the application from whichever source the driver
// supplied. At least one of the inline document or the path is required.
func (d DriverParams) Load() (*Application, error) {
	switch {
	case d.ApplicationJSON != "":
		loader := d.Loader
		if loader == "" {
			loader = LoaderJSON
		}
		return Parse(loader, "applicationJson", []byte(d.ApplicationJSON))
	case d.ApplicationPath != "":
		return LoadFile(d.ApplicationPath, d.Loader)
	}
	return nil, errs.NewConfigError("no application supplied: set %s or %s",
		pipeline.GlobalApplicationJSON, pipeline.GlobalApplicationPath)
}
