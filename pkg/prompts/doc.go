// Package prompts renders the system and user prompts sent to the generation backend.
package prompts
