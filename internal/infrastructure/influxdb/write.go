package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// writePoint queues a point on the batch writer. Disconnected clients drop
// the sample silently; telemetry is best effort.
func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}

// WriteZoneTemperature records one temperature sample for a zone. The
// control loop calls this every pass for each zone with a fresh reading.
func (c *Client) WriteZoneTemperature(zoneID string, current, target float64, heating bool) {
	c.writePoint("zone_temperature",
		map[string]string{"zone_id": zoneID},
		map[string]interface{}{
			"current": current,
			"target":  target,
			"heating": heating,
		},
		time.Now())
}

// WriteHeatingRate records a learned heating rate sample, written when a
// heating event completes and survives the noise gates.
func (c *Client) WriteHeatingRate(zoneID string, ratePerHour float64, durationMin float64) {
	c.writePoint("heating_rate",
		map[string]string{"zone_id": zoneID},
		map[string]interface{}{
			"rate_per_hour": ratePerHour,
			"duration_min":  durationMin,
		},
		time.Now())
}

// WriteHeatSourceDemand records the aggregated demand on a central heat
// source: the highest target among heating zones and whether any zone is
// calling for heat.
func (c *Client) WriteHeatSourceDemand(entityID string, maxTarget float64, active bool) {
	c.writePoint("heat_source_demand",
		map[string]string{"entity_id": entityID},
		map[string]interface{}{
			"max_target": maxTarget,
			"active":     active,
		},
		time.Now())
}

// WritePoint records an arbitrary measurement. Keep tags low cardinality.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.writePoint(measurement, tags, fields, time.Now())
}

// WritePointWithTime is WritePoint with an explicit timestamp, for data
// that arrives late.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	c.writePoint(measurement, tags, fields, timestamp)
}
