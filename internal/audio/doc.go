// Package audio drives the output device. It provides the Sink abstraction
// the playback stage writes to, an oto-backed implementation, default-device
// tracking for hot-swap, and decoding of synthesized audio into PCM.
package audio
