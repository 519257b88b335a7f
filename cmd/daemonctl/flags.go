package main

import "time"

// GlobalFlags are the persistent flags shared by every command. Zero values
// leave the config file (or its defaults) in charge.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	Socket     string
	PIDFile    string
	APITimeout time.Duration
	LogLevel   string
	JSON       bool
	Color      string
}

// LastChangeFlags Flag structs to decouple cobra from logic for testing.
type LastChangeFlags struct {
	Kind string
}

type ControlFlags struct {
	Reset bool // resume only: reset the daemon state instead of resuming
}

type RecordStateFlags struct {
	Kind  string
	Name  string
	PID   int
	State string
	At    time.Time // zero means now
}

type MonitorFlags struct {
	Listen   string
	BasePath string
	Schedule string
	// Once polls a single time and prints the snapshot instead of serving
	Once bool
}
