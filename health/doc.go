// Package health provides health status aggregation for graph nodes and
// the graphs that own them.
//
// A Status describes one component's health (healthy, degraded, or
// unhealthy) along with an optional list of sub-statuses. Monitor tracks
// the current Status for any number of named components in a
// thread-safe map and can aggregate them into one overall Status.
//
// # Basic Usage
//
//	monitor := health.NewMonitor()
//	monitor.Update("detector", health.FromNodeHealth("detector", n.State(), n.Err()))
//	monitor.Update("encoder", health.FromNodeHealth("encoder", n2.State(), n2.Err()))
//
//	overall := monitor.AggregateHealth("my-graph")
//	if !overall.IsHealthy() {
//	    log.Printf("graph degraded: %s", overall.Message)
//	}
//
// # Aggregation Rules
//
//   - All sub-statuses healthy -> aggregate is healthy
//   - Any sub-status unhealthy -> aggregate is unhealthy
//   - Otherwise, any sub-status degraded -> aggregate is degraded
//
// # Node Health Mapping
//
// FromNodeHealth maps a node's lifecycle state to a Status: Failing is
// unhealthy, Closing/Closed is degraded, anything else is healthy. Error
// messages are passed through sanitizeErrorMessage to strip URLs, file
// paths, IP addresses, ports, and anything that looks like a credential
// before they reach a health response body.
package health
