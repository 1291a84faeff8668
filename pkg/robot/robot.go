// Package robot is the device control facade for the Zenbo robot's
// HTTP control surface.
//
// Commands are POSTed form-encoded; queries are plain GETs returning JSON.
// Face expression changes honor a process-wide lock held in state.Shared,
// so while the robot is asleep (or otherwise pinned) no component can
// change its face by accident.
package robot

import "strings"

// Expression is a face the robot can show. Values match the robot
// firmware's RobotFace names.
type Expression string

// Faces used by the voice pipeline and a handful more the firmware accepts.
const (
	ExpressionDefault     Expression = "DEFAULT"
	ExpressionExpecting   Expression = "EXPECTING"
	ExpressionQuestioning Expression = "QUESTIONING"
	ExpressionTired       Expression = "TIRED"
	ExpressionHappy       Expression = "HAPPY"
	ExpressionInterested  Expression = "INTERESTED"
	ExpressionDoubting    Expression = "DOUBTING"
	ExpressionProud       Expression = "PROUD"
	ExpressionShocked     Expression = "SHOCKED"
	ExpressionConfident   Expression = "CONFIDENT"
	ExpressionPleased     Expression = "PLEASED"
	ExpressionWorried     Expression = "WORRIED"
	ExpressionSerious     Expression = "SERIOUS"
	ExpressionHideFace    Expression = "HIDEFACE"
)

// Expressions lists every face above, in declaration order.
var Expressions = []Expression{
	ExpressionDefault, ExpressionExpecting, ExpressionQuestioning, ExpressionTired,
	ExpressionHappy, ExpressionInterested, ExpressionDoubting, ExpressionProud,
	ExpressionShocked, ExpressionConfident, ExpressionPleased, ExpressionWorried,
	ExpressionSerious, ExpressionHideFace,
}

// ParseExpression matches s case-insensitively against Expressions.
func ParseExpression(s string) (Expression, bool) {
	up := Expression(strings.ToUpper(strings.TrimSpace(s)))
	for _, e := range Expressions {
		if e == up {
			return e, true
		}
	}
	return "", false
}
