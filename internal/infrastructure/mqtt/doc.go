// Package mqtt connects FermentWatch to an MQTT broker.
//
// The service publishes each project's latest temperature (retained) and
// every outlet change, keeps a retained online/offline status with a Last
// Will on fermentwatch/system/status, and accepts manual outlet commands on
// fermentwatch/project/{id}/outlet/set.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishTemperature(projectID, 19.6, time.Now())
package mqtt
