// Package static is the client for the static-analysis scanner service. It
// uploads a zipped workspace and decodes whichever known response layout the
// scanner returns.
package static
