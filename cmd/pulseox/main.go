// Command pulseox records interleaved CMS50D and MAX30101 samples to a CSV
// file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/cgxeiji/pulseox"
	"github.com/cgxeiji/pulseox/cms50d"
	"github.com/cgxeiji/pulseox/internal/setup"
)

func main() {
	var sensors setup.Flags
	sensors.Register(flag.CommandLine)
	var (
		n     = flag.Int("n", 1500, "number of rows to collect (negative collects until interrupted)")
		out   = flag.String("out", "", "output file (default data_<time>.csv)")
		delay = flag.Duration("delay", 5*time.Second, "wait before collecting, to place the sensors")
		list  = flag.Bool("list", false, "list serial ports and exit")
	)
	flag.Parse()

	if *list {
		ports, err := cms50d.Ports()
		if err != nil {
			log.Fatal(err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, &sensors, *n, *out, *delay); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, sensors *setup.Flags, n int, out string, delay time.Duration) (err error) {
	c, err := sensors.Open(log.Default())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}()

	log.Printf("collecting in %v", delay)
	if err := wait(ctx, delay); err != nil {
		return interrupted(err)
	}

	if out == "" {
		out = fmt.Sprintf("data_%s.csv", time.Now().Format("2006-01-02_15-04-05"))
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	w := pulseox.NewCollectorCSVWriter(f, c)
	rows := 0
	err = c.Collect(ctx, n, func(r pulseox.Row) error {
		rows++
		return w.Write(r)
	})
	if ferr := w.Flush(); err == nil {
		err = ferr
	}
	log.Printf("wrote %d rows to %s", rows, out)

	return interrupted(err)
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// interrupted treats an interrupt as a clean exit.
func interrupted(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
