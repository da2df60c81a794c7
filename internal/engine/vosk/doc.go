// Package vosk registers the "vosk" engine backend. The backend links
// libvosk through cgo and is only compiled with the vosk build tag.
package vosk
