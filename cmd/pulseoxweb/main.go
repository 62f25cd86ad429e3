// Command pulseoxweb plots the live waveforms of the attached sensors in a
// browser.
package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"flag"
	"html/template"
	"log"
	"net/http"
	"os"
	"os/signal"

	"github.com/cgxeiji/pulseox"
	"github.com/cgxeiji/pulseox/internal/setup"
	"github.com/cgxeiji/pulseox/internal/stream"
)

// windowWidth is the number of points shown on the plot.
const windowWidth = 500

//go:embed index.html
var page string

var templ = template.Must(template.New("index").Parse(page))

func main() {
	var sensors setup.Flags
	sensors.Register(flag.CommandLine)
	addr := flag.String("http", ":8080", "address to serve the plot on")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c, err := sensors.Open(log.Default())
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	room := stream.NewRoom(log.Default())
	go room.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if err := templ.Execute(w, struct {
			Width int
			Host  string
		}{windowWidth, r.Host}); err != nil {
			log.Println("pulseoxweb: could not render page:", err)
		}
	})
	mux.Handle("/stream", room)

	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	go func() {
		log.Println("serving plot on", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Println("pulseoxweb:", err)
			stop()
		}
	}()

	p := newPlotter()
	err = c.Collect(ctx, -1, func(r pulseox.Row) error {
		msg, err := json.Marshal(p.point(r))
		if err != nil {
			return err
		}
		room.Broadcast(msg)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Println(err)
	}
}
