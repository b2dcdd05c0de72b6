// Package privpoll wires the poll engine to a libp2p host. The engine itself
// lives in the poll package, the tally scheme in pkg/homomorphic.
package privpoll
