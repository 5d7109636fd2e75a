// Package domain defines the error taxonomy shared by the grid, the RESP
// server and the client library.
//
// Every failure a client can observe carries a stable code (GRID-<AREA>-<NNNN>)
// so that it survives the trip over the wire: the server writes
// "ERR <code> <message>" and the client maps the code back to the same
// sentinel, which keeps errors.Is working end to end.
package domain
