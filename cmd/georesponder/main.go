// Georesponder answers every command with a fixed reply, for running
// geoclient without a real server.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cyberinferno/geommdb-harness/logger"
	"github.com/cyberinferno/geommdb-harness/tcpserver"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:6379", "Address to listen on")
	reply := flag.String("reply", "OK", "Reply sent to every command (a newline is appended)")
	delay := flag.Duration("delay", 0, "Delay before each reply")
	level := flag.String("log-level", "debug", "Log level")
	flag.Parse()

	log := logger.NewConsoleLogger(os.Stderr, "georesponder", logger.ParseLevel(*level))
	defer log.Close()

	srv := tcpserver.NewTCPServer("georesponder", *addr, tcpserver.Delayed(*delay, *reply+"\n"), log)
	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	srv.Stop()
}
