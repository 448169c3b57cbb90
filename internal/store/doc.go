// Package store persists package records in SQLite.
//
// It is the durable side of the publish manager: records survive process
// restarts so the startup recovery sweep can resume packages that were
// mid-pipeline. The store owns schema creation and versioning; callers get
// plain media.Record values and never see SQL.
package store
