// Command receiver accepts DATA frames relayed through a Network
// Emulator, reassembles them in order, and persists the result. Usage per
// spec.md §6: no required arguments.
package main

import (
	"fmt"
	"net"
	"os"

	"dev.c0redev.rdtp/internal/config"
	"dev.c0redev.rdtp/internal/errs"
	"dev.c0redev.rdtp/internal/ioline"
	"dev.c0redev.rdtp/internal/logx"
	"dev.c0redev.rdtp/internal/receiver"
)

func main() {
	log, logFile, err := logx.OpenFile(config.GetenvString("RDTP_LOG_PATH", config.DefaultLogPath))
	if err != nil {
		fmt.Fprintln(os.Stderr, "open log file:", err)
		os.Exit(1)
	}
	defer logFile.Close()

	localAddr, err := net.ResolveUDPAddr("udp", config.GetenvString("RECEIVER_ADDR", config.DefaultReceiverAddr))
	if err != nil {
		log.Logf(logx.FATAL, "%v", errs.Wrap(errs.Config, err, "resolve local address"))
	}
	conn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		log.Logf(logx.FATAL, "%v", errs.Wrap(errs.Config, err, "bind "+localAddr.String()))
	}
	defer conn.Close()

	emulatorAddr, err := net.ResolveUDPAddr("udp", config.GetenvString("RDTP_EMULATOR_ADDR", "127.0.0.1"+config.DefaultNetworkEmulatorAddr))
	if err != nil {
		log.Logf(logx.FATAL, "%v", errs.Wrap(errs.Config, err, "resolve emulator address"))
	}

	outputPath := config.GetenvString("RDTP_OUTPUT_PATH", config.DefaultOutputPath)
	consumer, err := ioline.NewFileConsumer(outputPath)
	if err != nil {
		log.Logf(logx.FATAL, "%v", errs.Wrap(errs.Config, err, "open output file"))
	}
	defer consumer.Close()

	rc := receiver.New(conn, emulatorAddr, consumer, log)
	log.Logf(logx.INFO, "receiver listening on %s, writing to %s", localAddr, outputPath)
	if err := rc.Run(); err != nil {
		log.Logf(logx.FATAL, "receiver: %v", err)
	}
	log.Logf(logx.INFO, "done: delivered=%d duplicates=%d", rc.DeliveredCount, rc.DuplicateCount)
}
