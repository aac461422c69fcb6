// Package capture stores alert frames as timestamped JPEG files, keeps the
// number of stored files bounded and lists, pages and deletes them.
package capture
