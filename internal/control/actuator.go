package control

import (
	"context"
	"fmt"

	"github.com/nerrad567/fermentwatch/internal/device"
)

// Switcher is the part of the hub client that drives outlets.
type Switcher interface {
	InvokeSwitch(ctx context.Context, entityID string, on bool) error
	InvokeDirectSwitch(ctx context.Context, address string, on bool) error
}

// Actuator switches one outlet. The control path is fixed when the
// actuator is resolved.
type Actuator interface {
	Switch(ctx context.Context, on bool) error

	// Target names the hub entity or network address being driven.
	Target() string
}

type hubActuator struct {
	entityID string
	sw       Switcher
}

func (a hubActuator) Switch(ctx context.Context, on bool) error {
	return a.sw.InvokeSwitch(ctx, a.entityID, on)
}

func (a hubActuator) Target() string { return a.entityID }

type directActuator struct {
	address string
	sw      Switcher
}

func (a directActuator) Switch(ctx context.Context, on bool) error {
	return a.sw.InvokeDirectSwitch(ctx, a.address, on)
}

func (a directActuator) Target() string { return "http://" + a.address }

// ResolveActuator picks the control path for an outlet device. A hub
// entity is preferred over a direct address.
func ResolveActuator(dev *device.Device, sw Switcher) (Actuator, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: no outlet device", ErrConfiguration)
	}
	if dev.Kind != device.KindOutlet {
		return nil, fmt.Errorf("%w: device %s is a %s, not an outlet", ErrConfiguration, dev.ID, dev.Kind)
	}
	switch {
	case dev.HasHubEntity():
		return hubActuator{entityID: *dev.HubEntityID, sw: sw}, nil
	case dev.HasAddress():
		return directActuator{address: *dev.Address, sw: sw}, nil
	default:
		return nil, fmt.Errorf("%w: outlet %s has neither hub entity nor address", ErrConfiguration, dev.ID)
	}
}
