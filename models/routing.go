package models

// RoutingClass is the Gateway's classification of a WorkItem's complexity.
type RoutingClass string

const (
	ClassSimple    RoutingClass = "simple"
	ClassUncertain RoutingClass = "uncertain"
	ClassComplex   RoutingClass = "complex"
)

// Label returns the canonical coordinator-approved-* label for the class.
func (c RoutingClass) Label() string {
	return "coordinator-approved-" + string(c)
}

// RoutingDecision is emitted by the Gateway for each WorkItem it processes
// (spec.md §3, §4.6).
type RoutingDecision struct {
	Class            RoutingClass
	Score            int
	Signals          map[string]int
	AssignedRoleHint Role
	Rationale        string
}

// RoleForClass maps a RoutingClass to the role the Dispatcher should request
// (spec.md §4.8 step 2: Developer for Simple/Uncertain, Coordinator for
// Complex).
func RoleForClass(c RoutingClass) Role {
	if c == ClassComplex {
		return RoleCoordinator
	}
	return RoleDeveloper
}

// ClassFromLabel parses one of the coordinator-approved-* labels back into a
// RoutingClass. Used for Gateway idempotency (spec.md §4.6, Invariant 7) and
// restart recovery (spec.md §8, Invariant 9 / Scenario S6).
func ClassFromLabel(label string) (RoutingClass, bool) {
	switch label {
	case ClassSimple.Label():
		return ClassSimple, true
	case ClassUncertain.Label():
		return ClassUncertain, true
	case ClassComplex.Label():
		return ClassComplex, true
	}
	return "", false
}
