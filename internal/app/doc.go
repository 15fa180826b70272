// Package app contains the driver's core logic: the App struct, its
// configuration, and the run lifecycle, decoupled from any specific
// entrypoint like a CLI.
package app
