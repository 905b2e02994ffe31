// Package store keeps conversations and the tool data collected in them.
package store
