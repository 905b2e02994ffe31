// Package selector categorizes, scores and ranks registered tools for a query.
package selector
