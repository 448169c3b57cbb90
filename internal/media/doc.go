// Package media defines the package record persisted through the publish
// pipeline together with its lifecycle states and publication error codes.
//
// A Record is the unit of work: one submitted media package (tar archive or
// raw video file) tracked from submission to publication. State mutation is
// owned by the pipeline's state machine; everything else treats records as
// data.
package media
