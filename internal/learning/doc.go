// Package learning measures how fast each zone heats and predicts how
// long a future heat-up will take.
//
// The control loop opens an event when a zone transitions into
// heating and closes it when heating stops. Events shorter than five
// minutes or with a temperature change under 0.1°C are treated as
// noise and discarded; everything else folds into a rolling per-zone
// aggregate (sample count, mean, min and max °C/hour) stored on the
// zone itself so it survives restarts.
//
// Predictions divide the remaining temperature delta by the mean rate,
// scaled by an outdoor-temperature multiplier, and are only offered
// once a zone has at least twenty samples. The schedule engine uses
// them to open smart pre-heat windows ahead of a morning target time.
package learning
