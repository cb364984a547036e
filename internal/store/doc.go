// Package store persists finished test records and the stand calibration in
// a sqlite database via gorm.
//
// A TestRecord keeps the full reading trace as a JSON column alongside
// denormalized summary columns for cheap history listings. Crop bounds are
// plain nullable columns: setting or clearing them never touches the trace.
package store
