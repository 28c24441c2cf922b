/*
This is an example of application that will use the
engine package to bind shader resources from the assets folder
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/anima-binding/engine"
	"github.com/spaghettifunk/anima-binding/testbed"
)

func main() {
	configPath := flag.String("config", "binder.toml", "path of the engine configuration")
	flag.Parse()

	tb := testbed.NewTestGame(*configPath)

	engine, err := engine.New(tb.Game)
	if err != nil {
		panic(err)
	}

	if err := engine.Initialize(); err != nil {
		_ = engine.Shutdown()
		panic(err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// start shutdown goroutine
	go func() {
		// capture sigterm and other system call here
		<-sigCh
		_ = engine.Shutdown()
	}()

	// run engine
	if err := engine.Run(); err != nil {
		panic(err)
	}
}
