// Package audio provides audio processing utilities for the telephony
// bridge.
//
// This package serves as an umbrella for audio-related sub-packages:
//
//   - g711: G.711 µ-law companding and duration math for the fixed
//     8 kHz telephony format
//   - resample: 16-bit PCM sample-rate and channel conversion
//   - tone: procedural synthesis of the filler/hold clip
//   - wav: minimal RIFF reader and writer (PCM16 and µ-law)
//
// All audio crossing the telephony wire is G.711 µ-law at 8000 Hz, mono,
// one byte per sample. Linear PCM appears only inside the synthesis and
// file-handling paths.
package audio
