// Package robotsim simulates the Zenbo robot's control surface for local
// development: the HTTP command routes, the /events WebSocket and the legacy
// SSE stream, plus robot-side tools answered over the event socket.
package robotsim

import (
	"sync"
	"time"

	"github.com/teslashibe/go-kira/pkg/robot"
)

// Command is one accepted request, kept for inspection.
type Command struct {
	Path   string            `json:"path"`
	Fields map[string]string `json:"fields,omitempty"`
	At     time.Time         `json:"at"`
}

// State is a snapshot of the simulated robot.
type State struct {
	Expression      robot.Expression `json:"expression"`
	Speaking        bool             `json:"speaking"`
	LastUtterance   string           `json:"lastUtterance,omitempty"`
	VoiceTrigger    bool             `json:"voiceTrigger"`
	HeadAction      bool             `json:"headAction"`
	Following       string           `json:"following,omitempty"` // "", face, object, track
	LookDOA         float64          `json:"lookDoa"`
	LastAction      int              `json:"lastAction"`
	BlueLightFilter bool             `json:"blueLightFilter"`
	BlueLightMode   string           `json:"blueLightMode"`
	Commands        int              `json:"commands"`
}

// Robot holds the simulated device state. It is safe for concurrent use.
type Robot struct {
	mu       sync.RWMutex
	state    State
	commands []Command
	battery  robot.Battery
}

const maxCommands = 200

// NewRobot returns a robot showing the default face on a full battery.
func NewRobot() *Robot {
	tech := "Li-ion"
	return &Robot{
		state: State{
			Expression:    robot.ExpressionDefault,
			BlueLightMode: "0",
		},
		battery: robot.Battery{
			Level:        100,
			Scale:        100,
			Percentage:   100,
			Status:       5, // BATTERY_STATUS_FULL
			Plugged:      1,
			Health:       2, // BATTERY_HEALTH_GOOD
			TemperatureC: 28.5,
			VoltageMV:    4200,
			Present:      true,
			Technology:   &tech,
		},
	}
}

// State returns a copy of the current state.
func (r *Robot) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Commands returns the accepted requests, oldest first.
func (r *Robot) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, len(r.commands))
	copy(out, r.commands)
	return out
}

// Battery returns the simulated battery reading.
func (r *Robot) Battery() robot.Battery {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.battery
}

// SetBatteryLevel changes the reported charge.
func (r *Robot) SetBatteryLevel(level int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.battery.Level = level
	r.battery.Percentage = float64(level) * 100 / float64(r.battery.Scale)
}

// Update applies fn to the state under the lock and records the command.
func (r *Robot) Update(cmd Command, fn func(*State)) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn != nil {
		fn(&r.state)
	}
	if cmd.At.IsZero() {
		cmd.At = time.Now()
	}
	r.commands = append(r.commands, cmd)
	if len(r.commands) > maxCommands {
		r.commands = r.commands[1:]
	}
	r.state.Commands++
	return r.state
}

func (r *Robot) finishSpeaking(text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.state.Speaking || r.state.LastUtterance != text {
		return false
	}
	r.state.Speaking = false
	return true
}
