// Package agent routes user queries to tools and the generation backend.
package agent
