// Package factory loads the service configuration and wires the Agent with its backends.
package factory
