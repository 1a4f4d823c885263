package mqtt

import "fmt"

// Topic prefixes for the Hearth MQTT namespace.
//
// Entity traffic uses the flat scheme: hearth/{category}/{entity_id}
// Entity IDs follow the domain.object_id convention, for example
// climate.living_room or sensor.hall_temperature.
const (
	// TopicPrefix is the base for all Hearth topics.
	TopicPrefix = "hearth"

	// TopicPrefixCore is the base for engine-published topics.
	TopicPrefixCore = "hearth/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "hearth/system"
)

// Topics provides builders for Hearth MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.EntityState("climate.living_room")
//	// Returns: "hearth/state/climate.living_room"
type Topics struct{}

// =============================================================================
// Entity Topics
// =============================================================================

// EntityState returns the topic carrying state updates for an entity.
// State payloads are published retained so late subscribers see the
// last known value.
//
// Example: hearth/state/sensor.hall_temperature
func (Topics) EntityState(entityID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, entityID)
}

// EntityCommand returns the topic for commands to an entity.
//
// Example: hearth/command/climate.living_room
func (Topics) EntityCommand(entityID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, entityID)
}

// =============================================================================
// Core Topics
// =============================================================================

// CoreZoneState returns the topic for zone heating state published by
// the engine after each control pass.
//
// Example: hearth/core/zone/living-room/state
func (Topics) CoreZoneState(zoneID string) string {
	return fmt.Sprintf("%s/zone/%s/state", TopicPrefixCore, zoneID)
}

// CoreEvent returns the topic for engine events.
//
// Example: hearth/core/event/boost_started
func (Topics) CoreEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCore, eventType)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic. Used for the LWT and
// online/offline announcements.
//
// Example: hearth/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllEntityStates returns a pattern matching all entity state updates.
//
// Pattern: hearth/state/+
func (Topics) AllEntityStates() string {
	return fmt.Sprintf("%s/state/+", TopicPrefix)
}

// AllEntityCommands returns a pattern matching all entity commands.
//
// Pattern: hearth/command/+
func (Topics) AllEntityCommands() string {
	return fmt.Sprintf("%s/command/+", TopicPrefix)
}

// AllCoreZoneStates returns a pattern matching all zone state topics.
//
// Pattern: hearth/core/zone/+/state
func (Topics) AllCoreZoneStates() string {
	return fmt.Sprintf("%s/zone/+/state", TopicPrefixCore)
}

// AllCoreEvents returns a pattern matching all engine events.
//
// Pattern: hearth/core/event/+
func (Topics) AllCoreEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefixCore)
}

// AllTopics returns a pattern matching all Hearth topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: hearth/#
func (Topics) AllTopics() string {
	return "hearth/#"
}
