package batch

// DoneChecker is the slice of the status store the planner needs.
type DoneChecker interface {
	IsDone(unitID string) bool
}

// Plan computes the residual work set: every enumerated unit without a
// succeeded record. Failed and never-attempted units are both residual.
// Target files already on disk do not count as done; the status store is
// authoritative, since a crash may leave partially written outputs behind.
func Plan(units []Unit, store DoneChecker) []Unit {
	residual := make([]Unit, 0, len(units))
	for _, unit := range units {
		if store.IsDone(unit.ID) {
			continue
		}
		residual = append(residual, unit)
	}
	return residual
}
