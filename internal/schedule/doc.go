// Package schedule applies weekly heating schedules and smart
// pre-heat windows.
//
// On every tick the engine finds each zone's active schedule and, on
// first entry into a window, applies its target (a literal base target
// or a preset switch) through the registry so the change is persisted
// and visible everywhere. An applied window is remembered per zone:
// the same window is never re-applied, so a user adjustment made
// mid-window sticks until the next window begins. Leaving a window
// only forgets the marker; nothing is reverted.
//
// Zones with manual override set are left alone entirely.
//
// For zones with smart night boost, the engine predicts (from learned
// heating rates) how long the morning heat-up will take and opens a
// pre-heat window that far ahead of the morning target time, plus a
// safety margin. The control loop consumes the window.
package schedule
