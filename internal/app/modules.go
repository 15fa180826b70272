package app

import (
	"github.com/vk/metalus/internal/steps"
	"github.com/vk/metalus/steps/exprsteps"
	"github.com/vk/metalus/steps/flowsteps"
	"github.com/vk/metalus/steps/httpsteps"
	"github.com/vk/metalus/steps/stringsteps"
)

// coreModules is the definitive list of step modules compiled into the
// metalus binary.
var coreModules = []steps.Module{
	&stringsteps.Module{},
	&flowsteps.Module{},
	&exprsteps.Module{},
	&httpsteps.Module{},
}
