// Package repository provides a generic repository over a database.Session:
// lazy filtered and paged queries, key lookups, and inserts, updates and
// deletes that either commit at once or stage for a later SaveChanges.
package repository
