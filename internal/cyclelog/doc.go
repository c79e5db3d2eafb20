// Package cyclelog is the local disk backend of streamlog.
//
// Layout under the root directory:
//
//	<root>/<log>/offsets/              Pebble store: partition count, watermarks, group cursors
//	<root>/<log>/P-<n>/<cycle>.cycle    framed records appended during one cycle
//	<root>/<log>/P-<n>/<cycle>.index    mmapped seq -> position index of the cycle file
//
// A cycle is a wall-clock bucket (minute, hour or day) chosen from the
// retention: "10m" keeps ten minutely cycles, "12h" twelve hourly ones and
// "4d" four daily ones. Expired cycles are reclaimed when a partition rolls
// to a new cycle, on lag queries and by a periodic sweep, so old records
// disappear with some delay.
//
// Assignments are static: Subscribe is not supported.
package cyclelog
