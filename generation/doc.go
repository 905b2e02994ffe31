// Package generation provides the text-generation client backed by Ollama.
package generation
