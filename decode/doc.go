// Package decode turns raw broker topics and payloads into typed Readings.
//
// Each enterprise ships its own decoder because topic depth and field
// semantics differ: the glass line uses fixed five-to-six segment paths,
// the beverage line uses variable-depth paths where the equipment segment
// is sometimes absent, and the biotech feed uses flat unit/tag paths with
// ISA-5.1 style tag names.
//
// Decoding is a pure function and fails silently: an unrecognized topic
// shape or unparseable payload yields no Reading (counted by the caller),
// never an error. The feed is an open broker with arbitrary external
// publishers; a malformed message must not halt ingestion.
//
// A Table maps enterprise ids to decoders and fails fast at construction
// when a configured enterprise has no decoder.
package decode
