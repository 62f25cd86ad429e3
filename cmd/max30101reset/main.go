// Command max30101reset returns a MAX30101 to its power-on state.
package main

import (
	"flag"
	"log"

	"github.com/cgxeiji/pulseox/max30101"
)

func main() {
	var (
		bus  = flag.String("i2c", "", "I2C bus (empty uses the first bus)")
		addr = flag.Uint("addr", max30101.Addr, "I2C address")
	)
	flag.Parse()

	d, err := max30101.New(*bus, uint16(*addr), max30101.DefaultConfig())
	if err != nil {
		log.Fatal(err)
	}
	// Close resets the device.
	if err := d.Close(); err != nil {
		log.Fatal(err)
	}
	log.Println("max30101: reset")
}
