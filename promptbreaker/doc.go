// Package promptbreaker splits an over-long prompt into ordered, token-budgeted chunks.
package promptbreaker
