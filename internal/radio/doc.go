// Package radio connects the LightwaveRF transceiver to a physical or
// simulated 433MHz radio.
//
// Two drivers are available:
//   - gpio: a receiver and a transmitter wired to GPIO lines, accessed
//     through the Linux GPIO character device (go-gpiocdev). Edge
//     timestamps come from the kernel.
//   - loopback: a software line on a virtual clock. Everything emitted is
//     received by every watcher, which is how the bridge runs without
//     hardware and how the tests exchange messages.
//
// Usage:
//
//	dev, err := radio.Open(radio.Config{Driver: "gpio", Chip: "gpiochip0", RXLine: 27, TXLine: 17})
//	if err != nil {
//	    return err
//	}
//	defer dev.Close()
package radio
