package control

import (
	"context"
	"fmt"

	"github.com/nerrad567/fermentwatch/internal/project"
	"github.com/nerrad567/fermentwatch/internal/telemetry"
)

// SetOutletManual switches a project's outlet on explicit request.
//
// The project must be in manual mode so the loop and the user never fight
// over the outlet. The command is always sent; the flag and an actuation
// event are only written when the state actually changes. If the outlet
// switched but the flag could not be stored the event is still recorded
// and an error wrapping ErrPersistence is returned.
func (l *Loop) SetOutletManual(ctx context.Context, projectID string, on bool) error {
	p, err := l.projects.GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	if p.ControlMode != project.ModeManual {
		return fmt.Errorf("%w: project %s", ErrManualModeRequired, projectID)
	}

	act, err := l.resolveOutlet(ctx, p.OutletRef)
	if err != nil {
		return err
	}
	if err := l.switchOutlet(ctx, act, on); err != nil {
		l.stageFailed(p.ID, StageActuate, err, "target", act.Target(), "source", telemetry.SourceManual)
		return err
	}

	if on == p.OutletActive {
		l.logger.Debug("manual command repeated current outlet state",
			"project_id", p.ID,
			"state", telemetry.OutletStateName(on),
		)
		return nil
	}

	_, persistErr := l.commitActuation(ctx, p.ID, on, telemetry.SourceManual, p.CurrentTemperature, l.now())
	l.logger.Info("outlet switched",
		"project_id", p.ID,
		"state", telemetry.OutletStateName(on),
		"source", telemetry.SourceManual,
	)
	return persistErr
}
