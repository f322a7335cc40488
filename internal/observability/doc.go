// Package observability turns repository snapshots into platform insight:
// anomaly detection, opportunity finding and trend series. It also holds
// the JSONL event log the engine writes its own activity to, the stats
// derived from that log, and the Slack notifier for RED anomalies.
package observability
