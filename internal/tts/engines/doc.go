// Package engines contains speech-synthesis service clients.
// OpenAIEngine talks to any OpenAI-compatible /v1/audio/speech endpoint,
// CommandEngine runs a local synthesizer binary, and MockEngine serves tests.
// Each implements tts.Synthesizer.
package engines
