// Package chainer decomposes complex queries into ordered steps and runs them against the generation backend and the tools.
package chainer
