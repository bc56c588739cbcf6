// Package lightwaverf implements the LightwaveRF 433MHz line protocol.
//
// This package provides:
//   - A pulse classifier mapping edge timings to short, long or invalid
//   - A decoder state machine that reassembles 10-byte messages
//   - An encoder that turns messages into timed pulse trains
//   - A Transceiver tying both to an input and an output line
//
// # Wire Format
//
// A message is 10 bytes: a two-byte state or dim code (low byte first,
// normally the 0xF6 sentinel), the switch/channel symbol, the function
// byte and the 6-byte remote identity. On the air a message is a start
// marker, then per byte a start marker and 8 bits MSB first, then an end
// marker. A "1" or marker is a short HIGH mark; a "0" is a long LOW
// period. Every transmission repeats the message 12 times.
//
// # Protocol Revisions
//
// Three revisions are built in (classic, strict, open). They differ in bit
// timing, in whether a trailing LOW follows every zero, and in how the
// first byte is validated. See Revision and SentinelMode.
//
// # Thread Safety
//
// The decoder is a single-slot handoff: edges are handled in the line
// driver goroutine and never block; one consumer goroutine polls or waits
// for the finished message. While a message waits to be taken, new edges
// are dropped. Sending suspends edge handling for the whole burst.
//
// # Usage
//
//	tr, err := lightwaverf.Setup(lightwaverf.Options{
//	    Revision: lightwaverf.RevisionClassic,
//	    Input:    dev,
//	    Output:   dev,
//	})
//	if err != nil {
//	    return err
//	}
//	defer tr.Close()
//
//	var msg lightwaverf.Message
//	for tr.WaitForMessage(ctx) == nil {
//	    if tr.TakeMessage(&msg) {
//	        fmt.Println(msg.Remote(), msg.Command())
//	    }
//	}
package lightwaverf
