// Package httpapi exposes the attendance engine over HTTP.
//
// Routes live under /api. Teacher routes require a bearer identity with role
// teacher, the scan route requires role student, and /api/healthz and
// /api/metrics are open. Every JSON body carries "success"; failures add an
// "error" code and a human readable "message".
package httpapi
