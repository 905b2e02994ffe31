// Package toolcall parses tool invocation requests from model responses.
package toolcall
