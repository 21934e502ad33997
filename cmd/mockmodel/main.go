package main

import (
	"flag"
	"log"

	"github.com/moe-bench/moe-bench/internal/mockmodel"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:11435", "Server address")
	licensed := flag.Bool("vision-licensed", false, "Serve vision responses instead of 402")
	flag.Parse()

	state := mockmodel.NewState()
	state.VisionLicensed = *licensed

	server := mockmodel.NewServer(state)

	log.Printf("Starting mock inference server on %s", *addr)
	if err := server.Run(*addr); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
