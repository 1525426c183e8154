// Package mysql persists invocation logs and user feedback in MySQL,
// creating its schema on startup.
package mysql
