// Package registry is the embedded relational store for devices, runs,
// users, incubators, and alerts: the one piece of fleet state that
// survives a restart.
//
// Migrations run at open and are idempotent: they add missing columns and
// rebuild primary keys, both safe to run against a database that has
// already been migrated. Legacy user records are not imported at open;
// MigrateLegacyUsers imports them when called, and only into an empty
// users table.
package registry
