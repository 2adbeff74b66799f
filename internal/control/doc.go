// Package control runs the fermentation temperature control loop.
//
// Every interval the loop lists projects, reads each project's sensor
// through the automation hub, records the sample, and for projects under
// automatic control switches the heating outlet when Decide changes its
// wanted state. Projects are processed concurrently and independently; no
// downstream failure stops the loop.
//
// Usage:
//
//	loop, err := control.NewLoop(control.Deps{
//	    Projects: projects,
//	    Devices:  registry,
//	    Hub:      hubClient,
//	    Recorder: influx,
//	    Interval: cfg.PollInterval(),
//	    Logger:   logger,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := loop.Start(ctx); err != nil {
//	    return err
//	}
//	defer loop.Stop()
package control
