// Command transmitter reads an input file and reliably delivers it, line
// by line, to a Receiver through a Network Emulator. Usage per spec.md
// §6: transmitter [host] [input-file].
package main

import (
	"fmt"
	"net"
	"os"
	"strings"

	"dev.c0redev.rdtp/internal/config"
	"dev.c0redev.rdtp/internal/errs"
	"dev.c0redev.rdtp/internal/ioline"
	"dev.c0redev.rdtp/internal/logx"
	"dev.c0redev.rdtp/internal/sendbuf"
	"dev.c0redev.rdtp/internal/transmitter"
)

func main() {
	log, logFile, err := logx.OpenFile(config.GetenvString("RDTP_LOG_PATH", config.DefaultLogPath))
	if err != nil {
		fmt.Fprintln(os.Stderr, "open log file:", err)
		os.Exit(1)
	}
	defer logFile.Close()

	if len(os.Args) < 3 {
		log.Log(logx.FATAL, "usage: transmitter [host] [input-file]")
	}
	host := os.Args[1]
	inputPath := os.Args[2]

	emulatorAddr, err := resolveEmulatorAddr(host)
	if err != nil {
		log.Logf(logx.FATAL, "%v", errs.Wrap(errs.Config, err, "resolve emulator host "+host))
	}

	localAddr, err := net.ResolveUDPAddr("udp", config.GetenvString("TRANSMITTER_ADDR", config.DefaultTransmitterAddr))
	if err != nil {
		log.Logf(logx.FATAL, "%v", errs.Wrap(errs.Config, err, "resolve local address"))
	}
	conn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		log.Logf(logx.FATAL, "%v", errs.Wrap(errs.Config, err, "bind "+localAddr.String()))
	}
	defer conn.Close()

	producer := &ioline.FileProducer{Path: inputPath}
	lines, err := producer.Lines()
	if err != nil {
		log.Logf(logx.FATAL, "%v", errs.Wrap(errs.Config, err, "read input file"))
	}
	log.Logf(logx.INFO, "loaded %d lines from %s", len(lines), inputPath)

	buf := sendbuf.New(lines)
	tr := transmitter.New(conn, emulatorAddr, buf, log)
	if err := tr.Run(); err != nil {
		log.Logf(logx.FATAL, "transmitter: %v", err)
	}
	log.Logf(logx.INFO, "done: sent=%d retransmits=%d acks=%d", tr.SentCount, tr.RetransmitCount, tr.AckReceivedCount)
}

func resolveEmulatorAddr(host string) (*net.UDPAddr, error) {
	if !strings.Contains(host, ":") {
		host = host + config.DefaultNetworkEmulatorAddr
	}
	return net.ResolveUDPAddr("udp", host)
}
