// Command emulator relays Frame datagrams between a Transmitter and a
// Receiver, applying a configurable delay and drop probability. The GUI
// described in spec.md §6 is out of scope (§1); this process exposes the
// same runtime knobs over a small loopback HTTP control surface instead.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"

	"dev.c0redev.rdtp/internal/config"
	"dev.c0redev.rdtp/internal/emulator"
	"dev.c0redev.rdtp/internal/errs"
	"dev.c0redev.rdtp/internal/logx"
	"dev.c0redev.rdtp/internal/trace"
)

func main() {
	log, logFile, err := logx.OpenFile(config.GetenvString("RDTP_LOG_PATH", config.DefaultLogPath))
	if err != nil {
		fmt.Fprintln(os.Stderr, "open log file:", err)
		os.Exit(1)
	}
	defer logFile.Close()

	localAddr, err := net.ResolveUDPAddr("udp", config.GetenvString("NETWORK_EMULATOR_ADDR", config.DefaultNetworkEmulatorAddr))
	if err != nil {
		log.Logf(logx.FATAL, "%v", errs.Wrap(errs.Config, err, "resolve local address"))
	}
	conn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		log.Logf(logx.FATAL, "%v", errs.Wrap(errs.Config, err, "bind "+localAddr.String()))
	}
	defer conn.Close()

	transmitterAddr, err := net.ResolveUDPAddr("udp", config.GetenvString("TRANSMITTER_ADDR", "127.0.0.1"+config.DefaultTransmitterAddr))
	if err != nil {
		log.Logf(logx.FATAL, "%v", errs.Wrap(errs.Config, err, "resolve transmitter address"))
	}
	receiverAddr, err := net.ResolveUDPAddr("udp", config.GetenvString("RECEIVER_ADDR", "127.0.0.1"+config.DefaultReceiverAddr))
	if err != nil {
		log.Logf(logx.FATAL, "%v", errs.Wrap(errs.Config, err, "resolve receiver address"))
	}

	tracePath := config.GetenvString("RDTP_TRACE_PATH", config.DefaultTracePath)
	traceDB, err := trace.Open(tracePath)
	if err != nil {
		log.Logf(logx.FATAL, "%v", errs.Wrap(errs.Config, err, "open trace store"))
	}
	defer traceDB.Close()

	eng := emulator.New(conn, transmitterAddr, receiverAddr, traceDB, log)
	eng.Knobs.SetDelay(int64(config.GetenvInt("RDTP_DELAY_MS", 0)))
	eng.Knobs.SetProbability(int32(config.GetenvInt("RDTP_DROP_PCT", 0)))

	if ctrlAddr := config.GetenvString("RDTP_CONTROL_ADDR", "127.0.0.1:50003"); ctrlAddr != "" {
		ctrl := emulator.NewControlServer(eng)
		go func() {
			log.Logf(logx.INFO, "control surface on %s", ctrlAddr)
			if err := http.ListenAndServe(ctrlAddr, ctrl.Handler()); err != nil {
				log.Logf(logx.ERROR, "control surface: %v", err)
			}
		}()
	}

	log.Logf(logx.INFO, "emulator relaying %s <-> %s on %s", transmitterAddr, receiverAddr, localAddr)
	if err := eng.Run(); err != nil {
		log.Logf(logx.FATAL, "emulator: %v", err)
	}
}
