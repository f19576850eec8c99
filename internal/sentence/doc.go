// Package sentence cuts a live stream of text fragments into sentences
// small enough to synthesize independently.
package sentence
