// Package remote holds the chat transports of the controller: Telegram for the real
// deployment and MQTT for headless setups.
package remote

import "github.com/LeonardoBeccarini/gardenbot/internal/model/messages"

// drain takes at most max commands without blocking.
func drain(inbox <-chan messages.Command, max int) []messages.Command {
	var out []messages.Command
	for len(out) < max {
		select {
		case cmd := <-inbox:
			out = append(out, cmd)
		default:
			return out
		}
	}
	return out
}
