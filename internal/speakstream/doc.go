// Package speakstream turns a stream of text fragments into continuous,
// in-order speech. Fragments are accumulated into sentences, each sentence
// is synthesized concurrently, and results are released to a single
// playback worker strictly in submission order. StopSpeech interrupts
// everything in flight and leaves the stream ready for new input.
package speakstream
