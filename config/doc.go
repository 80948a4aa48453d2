// Package config loads and validates the pipeline's YAML configuration.
//
// A single document configures the NATS transport, the ingest
// subscription, per-enterprise decoder enablement, window geometry,
// lifecycle classification thresholds, the sink, metrics, and logging.
// Load layers the document over Default() so absent fields keep sane
// values, then Validate fails startup on anything the pipeline cannot
// run with: an unknown enterprise id, a non-positive window, a grace
// period that swallows the window, or inverted thresholds.
package config
