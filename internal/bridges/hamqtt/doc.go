// Package hamqtt bridges the heating engine to a home-automation
// integration over MQTT.
//
// The integration mirrors every entity it owns to a retained topic:
//
//	hearth/state/{entity_id}  →  {"value": ..., "attributes": {...}, "available": true}
//
// and accepts commands on:
//
//	hearth/command/{entity_id}  ←  {"action": "set_temperature", "params": {"temperature": 21.5}}
//
// The bridge subscribes to the state tree once, keeps an in-memory
// cache of the latest state per entity, and fans out old/new change
// notifications to registered handlers. Retained messages mean the
// cache is warm within moments of connecting, so the first control
// pass already sees real sensor values.
//
// Reads are served from the cache and never block on the network;
// commands are fire-and-forget publishes acknowledged at the broker.
package hamqtt
