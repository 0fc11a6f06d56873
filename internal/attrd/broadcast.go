package attrd

import (
	"clusterd/internal/bus"
	"clusterd/internal/ids"
)

const attrdMessageType = "attrd"

// broadcastLocked implements §4.1 broadcast(attr): emit one message to all
// peers carrying {name, value, set, section, dampen, user?, origin}. Caller
// holds e.mu.
func (e *Engine) broadcastLocked(entry *Entry) {
	if e.bus == nil {
		return
	}

	body := map[string]string{
		"name":    entry.Name,
		"set":     entry.Set,
		"section": entry.Section,
		"dampen":  ids.FormatDuration(entry.DampenMs),
		"origin":  e.hostKey,
	}
	if entry.CurrentValue != nil {
		body["value"] = *entry.CurrentValue
	} else {
		body["value-null"] = "true"
	}
	if entry.ActingUser != "" {
		body["user"] = entry.ActingUser
	}
	if entry.DampenMs <= 0 {
		// Origin already commits locally on this same fire; tag the
		// broadcast so that if the bus ever echoes a node's own message
		// back to itself, the origin does not double-apply it.
		body["ignore-locally"] = e.hostKey
	}

	if err := e.bus.Broadcast(bus.Envelope{Type: attrdMessageType, Origin: e.hostKey, Task: "flush", Body: body}); err != nil {
		log.WithField("attr", entry.Name).WithField("error", err).Warn("attrd: broadcast failed")
	}
}

// ReceiveClusterMessage handles an inbound peer envelope (§6.2). It applies
// the same taxonomy as the local IPC (§6.1) plus `flush`.
func (e *Engine) ReceiveClusterMessage(env bus.Envelope) {
	if env.Type != attrdMessageType {
		return
	}
	if env.Body["ignore-locally"] == e.hostKey {
		return
	}

	switch env.Task {
	case "flush":
		_, isNull := env.Body["value-null"]
		e.applyRemoteFlush(env.Body["name"], env.Body["value"], env.Body["set"], env.Body["section"], isNull)
	case "update":
		e.Update(env.Body["name"], env.Body["value"], env.Body["dampen"], env.Body["set"], env.Body["section"], env.Body["user"])
	case "refresh":
		e.Refresh()
	case "peer-remove":
		e.PeerRemove(env.Body["node"])
	case "clear-failure":
		e.ClearFailure(ClearFailureRequest{
			Resource:    env.Body["resource"],
			Operation:   env.Body["operation"],
			IntervalMs:  parseIntervalOrZero(env.Body["interval"]),
			Host:        env.Body["host"],
			ActingUser:  env.Body["user"],
		})
	}
}

func parseIntervalOrZero(s string) int64 {
	ms, err := ids.ParseDuration(s)
	if err != nil {
		return 0
	}
	return ms
}
