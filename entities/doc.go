// Package entities extracts structured signals (intent, dates, categories, authors, locations, keywords) from free-text queries.
package entities
