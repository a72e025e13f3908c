// Package assetpath derives the storage path of a recording from its
// position in the course: level, unit, root character and item kind.
//
// Paths look like
//
//	L1/Unit_3/kou/word_2.mp3
//
// and are a pure function of their inputs, so the uploader and every
// player agree on where a recording lives without a lookup table.
package assetpath
