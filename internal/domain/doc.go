// Package domain models the daily weather grid: cells of a global 5 km raster,
// the coverage each cell still needs, the requests sent to the weather API, and
// the rows those requests produce.
//
// # Grid
//
// The world is tiled by UTM zone/latitude-band polygons ("world UTM polygons").
// Each polygon owns a raster of 5 km pixels in its local UTM (or UPS at the
// poles) projection. Pixels that touch the polygon carry a cell ID; the rest
// hold 0. Cell IDs are dense and increase across polygons in (row, zone)
// order, so a cell ID alone identifies one pixel of one polygon.
//
// Centroids are WGS84 lon/lat rounded to 5 decimal places. The rounded value is
// echoed back by the weather API and is how response rows are matched to
// cells, so it must be reproduced exactly.
//
// # Dates
//
// Calendar dates are carried as [time.Time] values at 00:00 UTC; see [Day].
// A zone's "local" day is derived from its fixed UTC offset, never from a tz
// database. Daily parameters are right-bounded 24h aggregates, so requests ask
// for each local day's 23:59:59 instant expressed in UTC ([EndOfDayUTC]).
//
// Values fetched for a day keep changing until 24h after that day ends. A row
// is "stable" once it was requested on or after the day after next
// ([FirstUnstableDate]); anything newer is refetched by the update step.
//
// # Quota
//
// The weather API enforces a daily request cap that resets at UTC midnight. A
// self-imposed limit on top of it is enforced by counting today's rows in the
// request log.
package domain
