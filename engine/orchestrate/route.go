package orchestrate

// FindOptimalRoute returns a best-effort single-hop route from sourceID to
// targetID. The route always starts at source and ends at target; at most
// one intermediate id is inserted, the first known descriptor (other than
// source and target) that declares the requested capability. Callers that
// need true multi-hop pathing should walk the semantic graph instead.
func (e *Engine) FindOptimalRoute(sourceID, targetID, capability string) []string {
	for _, d := range e.snapshot() {
		if d.ID == sourceID || d.ID == targetID {
			continue
		}
		if d.HasCapability(capability) {
			return []string{sourceID, d.ID, targetID}
		}
	}
	return []string{sourceID, targetID}
}
