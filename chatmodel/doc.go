// Package chatmodel carries conversation and request ids in the context.
package chatmodel
