// Package gormstore is the durable store of the attendance engine, built on gorm
// with Postgres (through lib/pq) or SQLite.
//
// Two guarantees carry the engine's concurrency model: the unique index on
// (session_id, student_id) in attendances, and the conditional update that flips
// a session from active to ended and reports through RowsAffected whether the
// caller won. Courses, classes and students are reference data; SaveCourse,
// SaveClass and SaveStudent exist for seeding and tests.
package gormstore
