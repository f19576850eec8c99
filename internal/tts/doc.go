// Package tts defines the data model shared by the speech pipeline: synthesis
// jobs and their results, the boundary interfaces for synthesis services and
// transcoders, and the error taxonomy used to report failures.
package tts
