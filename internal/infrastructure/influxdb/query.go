package influxdb

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// TemperaturePoint is one aggregated zone temperature sample.
type TemperaturePoint struct {
	Time    time.Time `json:"time"`
	Current *float64  `json:"current,omitempty"`
	Target  *float64  `json:"target,omitempty"`
}

// QueryZoneTemperatures returns aggregated temperature history for a zone.
//
// Samples are windowed means over the given step. Windows without data
// are omitted rather than interpolated.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - zoneID: Zone identifier
//   - since: Start of the query range
//   - step: Aggregation window size (minimum 1 minute)
//
// Returns:
//   - []TemperaturePoint: Samples in ascending time order
//   - error: If the query fails or the client is disconnected
func (c *Client) QueryZoneTemperatures(ctx context.Context, zoneID string, since time.Time, step time.Duration) ([]TemperaturePoint, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	if step < time.Minute {
		step = time.Minute
	}

	flux := fmt.Sprintf(`from(bucket: %q)
  |> range(start: %s)
  |> filter(fn: (r) => r._measurement == "zone_temperature")
  |> filter(fn: (r) => r.zone_id == %q)
  |> filter(fn: (r) => r._field == "current" or r._field == "target")
  |> aggregateWindow(every: %s, fn: mean, createEmpty: false)`,
		c.cfg.Bucket, since.UTC().Format(time.RFC3339), zoneID, step.String())

	queryAPI := c.client.QueryAPI(c.cfg.Org)
	result, err := queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("querying zone temperatures: %w", err)
	}
	defer result.Close()

	// Merge the current and target series by timestamp.
	byTime := make(map[time.Time]*TemperaturePoint)
	for result.Next() {
		record := result.Record()
		val, ok := record.Value().(float64)
		if !ok {
			continue
		}
		ts := record.Time()
		point, exists := byTime[ts]
		if !exists {
			point = &TemperaturePoint{Time: ts}
			byTime[ts] = point
		}
		v := val
		switch record.Field() {
		case "current":
			point.Current = &v
		case "target":
			point.Target = &v
		}
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("reading zone temperature results: %w", result.Err())
	}

	points := make([]TemperaturePoint, 0, len(byTime))
	for _, p := range byTime {
		points = append(points, *p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
	return points, nil
}
