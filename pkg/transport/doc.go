/*
Package transport defines the facade the engine consumes from the
external connectivity layer.

Link selection, fallback between WiFi/LoRa/cellular, and reconnection
all belong to the connectivity manager outside this repository. The
engine only asks the established link three questions — bandwidth
category, cost per KB, signal strength — and uses them for exactly one
decision: whether to prefer delta transfers over full blob fetches
(PreferDelta: slow or metered links prefer deltas).

Loopback is the no-op link injected for host-side runs and tests.
*/
package transport
