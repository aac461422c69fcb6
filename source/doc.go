// Package source provides frame sources backed by OpenCV video capture and
// a goroutine that pushes their frames onto a channel.
package source
