// Package hlo holds the in-memory representation of an HLO module, one
// parsed linear-algebra computation graph, and the text loader that
// produces it.
//
// HLO module text:
//
//	HloModule add
//
//	ENTRY main {
//	  x = f32[4] parameter(0)
//	  y = f32[4] parameter(1)
//	  ROOT sum = f32[4] add(x, y)
//	}
//
// A parsed Module is immutable: the compilation pipeline consumes it and
// never writes back into it.
package hlo
