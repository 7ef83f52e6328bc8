package harness

import "fmt"

// checkExpect compares the final summary with the scenario's expectations.
func checkExpect(e Expect, s Summary, r *Result) {
	if e.Status != s.Status {
		r.AddError(fmt.Sprintf("status: expected %s, got %s", e.Status, s.Status))
	}
	checkCount(r, "successes", e.Successes, s.Successes)
	checkCount(r, "timeouts", e.Timeouts, s.Timeouts)
	checkCount(r, "closed", e.Closed, s.Closed)
	checkCount(r, "alerts", e.Alerts, s.Alerts)
	checkCount(r, "probes", e.Probes, s.Probes)
}

func checkCount(r *Result, field string, want *int, got int) {
	if want == nil || *want == got {
		return
	}
	r.AddError(fmt.Sprintf("%s: expected %d, got %d", field, *want, got))
}
