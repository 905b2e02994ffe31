// Package server exposes the Agent over HTTP with JSON request and response bodies.
package server
