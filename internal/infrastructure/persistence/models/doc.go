// Package models holds the GORM row types the repositories read and write.
// They mirror the domain aggregates field for field but keep every ORM
// concern (tags, table names, scan shapes) out of the domain layer; mappers
// on each type convert in both directions.
//
// base.go carries the shared identity columns; the remaining files pair one
// to one with the domain contexts (signal, detection, insight, priority,
// outcome).
package models
