// Package tools defines the descriptor of a remote tool and the registry shared by the selector, the tool client and the agent.
package tools
