// Package predicate decides which tree paths and which fields a sync run is
// allowed to touch.
//
// Decisions always carry a justification so every skip is explainable in
// the log. Scope rules are written in CUE and compiled with the CUE Go API:
//
//	scope: {
//		partitions: {
//			master: {
//				include: ["/content", "/templates"]
//				exclude: ["/content/trash"]
//			}
//		}
//		fields: {
//			exclude: ["7ede62e0-8a33-4b34-86b2-b3d8f2d97c49"]
//		}
//	}
//
// Path rules are prefix rules; the most specific matching prefix wins, so
// an exclude nested under an include carves a hole in it. Paths not covered
// by any include rule are out of scope.
package predicate
