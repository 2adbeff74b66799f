package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the FermentWatch MQTT namespace.
const (
	// TopicPrefixProject is the base for per-project topics.
	TopicPrefixProject = "fermentwatch/project"

	// TopicPrefixSystem is the base for service status topics.
	TopicPrefixSystem = "fermentwatch/system"
)

// Topics provides builders for FermentWatch MQTT topics.
//
//	topic := mqtt.Topics{}.ProjectTemperature("3f1c...")
//	// Returns: "fermentwatch/project/3f1c.../temperature"
type Topics struct{}

// ProjectTemperature returns the retained topic carrying a project's latest reading.
//
// Example: fermentwatch/project/{id}/temperature
func (Topics) ProjectTemperature(projectID string) string {
	return fmt.Sprintf("%s/%s/temperature", TopicPrefixProject, projectID)
}

// ProjectOutlet returns the topic carrying a project's outlet changes.
//
// Example: fermentwatch/project/{id}/outlet
func (Topics) ProjectOutlet(projectID string) string {
	return fmt.Sprintf("%s/%s/outlet", TopicPrefixProject, projectID)
}

// ProjectOutletCommand returns the topic accepting manual outlet commands.
//
// Example: fermentwatch/project/{id}/outlet/set
func (Topics) ProjectOutletCommand(projectID string) string {
	return fmt.Sprintf("%s/%s/outlet/set", TopicPrefixProject, projectID)
}

// AllProjectOutletCommands returns a pattern matching every project's command topic.
//
// Pattern: fermentwatch/project/+/outlet/set
func (Topics) AllProjectOutletCommands() string {
	return fmt.Sprintf("%s/+/outlet/set", TopicPrefixProject)
}

// SystemStatus returns the retained service status topic (also the Last Will topic).
//
// Example: fermentwatch/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// ProjectIDFromCommandTopic extracts the project ID from an outlet command topic.
func ProjectIDFromCommandTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefixProject+"/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/outlet/set")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
