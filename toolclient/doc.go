// Package toolclient invokes remote tools over HTTP, reconciling tool names and argument types with the registry.
package toolclient
