package kira

import "github.com/teslashibe/go-kira/pkg/agent"

// RemoteTools are the robot-side tools offered to the model. They run on the
// robot and are reached through the event stream.
var RemoteTools = []agent.RemoteSpec{
	{
		Name:        "play_action",
		Description: "Play one of the robot's canned body animations, for example to greet someone or to celebrate.",
		Props: []agent.Prop{
			{Name: "number", Type: agent.TypeNumber, Required: true},
		},
	},
	{
		Name:        "set_expression",
		Description: "Change the face shown on the robot's display. Use HAPPY, INTERESTED, PROUD, WORRIED, SHOCKED or DEFAULT.",
		Props: []agent.Prop{
			{Name: "expression", Required: true},
		},
	},
	{
		Name:          "get_battery",
		Description:   "Read the robot's battery level and charging state.",
		WaitForReturn: true,
	},
}
