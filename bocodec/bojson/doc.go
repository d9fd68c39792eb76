// Package bojson contains a [bocodec.Codec] that reads and writes JSON.
//
// The format is the one spoken by the HTTP transport:
// messages are {"k": round, "x": 0|1|"?", "messageType": "proposal"|"vote"}
// and node state is {"killed": bool, "x": 0|1|null, "decided": bool|null, "k": round|null}.
package bojson
