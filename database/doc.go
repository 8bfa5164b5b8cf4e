// Package database manages Bun connections for MySQL, PostgreSQL and SQLite,
// creates the tables of registered models and provides Session, the unit of
// work the repository package builds on.
package database
