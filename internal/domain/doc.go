// Package domain defines the types and ports shared by the relay coordination core.
//
// Nothing in here talks to Redis or the network. Adapters implement the ports
// (Counter, Publisher, Subscriber, Connection, InstanceDirectory, Leader) and the
// app package composes them.
package domain
