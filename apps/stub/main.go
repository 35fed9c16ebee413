package main

import (
	"flag"
	"log"
	"os"

	echostub "github.com/literate-limited/beeline/apps/stub/echo"
	"github.com/literate-limited/beeline/services/logsvc"
)

func main() {
	addr := flag.String("addr", ":8000", "listen address")
	dropAcks := flag.Bool("drop-send-acks", false, "drop send_message frames (failure testing)")
	flag.Parse()

	std := log.New(os.Stdout, "STUB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewConsoleLogger(std)

	app := echostub.NewServer(echostub.Options{
		Addr:         *addr,
		Logger:       logger,
		DropSendAcks: *dropAcks,
	})
	logger.Info("signaling stub listening", *addr)
	app.Start()
}
