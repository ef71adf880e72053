// Package models contains the GORM persistence models. Each model converts
// to and from its domain type with ToDomain/FromDomain. Column types are kept
// portable so the same models run on PostgreSQL and on SQLite in tests.
package models
