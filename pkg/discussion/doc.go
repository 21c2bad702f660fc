// Package discussion holds the append-only message log of one round-table discussion.
//
// Invariants:
// - Messages are never mutated or removed after Append.
// - Round numbers are non-decreasing in append order.
// - Export followed by FromExport reproduces an identical Export.
//
// Usage:
//
//	d := discussion.New("Is remote work here to stay?", 3, []string{"dr_nova", "biz"}, "")
//	_ = d.Append(discussion.Message{Speaker: "dr_nova", Text: "...", Round: 1})
//	fmt.Println(d.Transcript())
package discussion
