// Package websocket serves the live dashboard channel. Each client sends
// render selections as JSON and gets one render (or error) message back per
// selection; the hub broadcasts data_update messages when the source is
// reloaded.
package websocket
