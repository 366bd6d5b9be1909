// Package storage writes downloaded stories to disk for the command line
// client.
//
// Files are laid out as <output>/<handle>/<story id>.<mp4|jpg>, or
// <output>/<handle>_<story id>.<ext> when per-account folders are disabled.
// Writes go through a temporary file and a rename so an interrupted download
// never leaves a truncated media file behind. Files already present are
// detected on startup and skipped unless overwriting is enabled.
package storage
