// Package export writes batch results to files.
//
// Four formats are supported: a flat CSV with one row per (query, result),
// a JSON array with one object per query, an XLSX workbook with detail,
// per-item summary and statistics sheets, and a '#'-separated
// recommendation sheet listing the recommender's pick and alternatives
// for each query.
package export
