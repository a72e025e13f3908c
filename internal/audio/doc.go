// Package audio plays MP3 recordings on the local output device.
//
// Recordings are decoded with go-mp3 and streamed to oto/v3. A MockPlayer
// with the same contract simulates playback for tests and headless runs.
package audio
