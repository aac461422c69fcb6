/*
go-motionwatch is a motion detection and tracking engine for home monitoring
cameras.  Each frame is run through a background model to find foreground
regions, a motion gate decides whether anything changed since the previous
frame, and a centroid tracker gives each moving region a persistent identity
whose threat level rises the longer it stays in view.  A constant velocity
Kalman filter per tracked object forecasts where it will be next.

The Engine ties these stages together for a single processing loop.  The
cmd/motionwatch program wraps it with a camera source, an MJPEG live view,
capture storage and a settings API.
*/
package motionwatch
