// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

// Command rtpconfd runs one conference leg: it opens a UDP transport, wires
// up a media.Session over a G.711 codec, and sends silence frames from a
// ticker standing in for a real capture device (capture/playback hardware is out
// of scope, see SPEC_FULL.md section 1).
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/arzzra/rtpconf/audio"
	"github.com/arzzra/rtpconf/media"
)

func main() {
	laddrFlag := flag.String("listen", "127.0.0.1:0", "local UDP address to bind")
	raddrFlag := flag.String("peer", "", "remote UDP address to send to")
	alaw := flag.Bool("alaw", false, "use PCMA instead of PCMU")
	flag.Parse()

	lev, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || lev == zerolog.NoLevel {
		lev = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.StampMicro,
	}).With().Timestamp().Logger().Level(lev)
	media.SetLogger(log.Logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, *laddrFlag, *raddrFlag, *alaw); err != nil {
		log.Fatal().Err(err).Msg("rtpconfd finished with error")
	}
}

func run(ctx context.Context, laddrStr, raddrStr string, alaw bool) error {
	laddr, err := net.ResolveUDPAddr("udp", laddrStr)
	if err != nil {
		return err
	}

	var raddr *net.UDPAddr
	if raddrStr != "" {
		raddr, err = net.ResolveUDPAddr("udp", raddrStr)
		if err != nil {
			return err
		}
	}

	transport, err := media.NewUDPTransport(laddr, raddr)
	if err != nil {
		return err
	}
	log.Info().Stringer("local", transport.LocalAddr()).Msg("listening")

	codec := audio.NewG711Processor(alaw)
	if err := codec.Configure(8000, 1); err != nil {
		return err
	}
	profiled := audio.WrapProfiling(codec)

	sess := media.NewSession(media.SessionConfig{
		Codec:                profiled,
		JitterBufferSize:     media.DefaultJitterBufferSize,
		JitterMinBufferPkts:  3,
		Tool:                 "rtpconfd",
		Config:               media.EnvConfig{},
		ShutdownOnLastRemote: true,
	}, transport)

	if err := sess.StartUp(ctx); err != nil {
		return err
	}

	silence := profiled.SilenceFrame()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			return sess.Shutdown(shutdownCtx)
		case <-sess.RTCP.Done():
			log.Info().Msg("session ended, last remote left")
			return sess.Shutdown(context.Background())
		case <-ticker.C:
			if raddr == nil {
				continue
			}
			if err := sess.Sender.SendFrame(silence, false); err != nil {
				log.Warn().Err(err).Msg("send failed")
			}
		}
	}
}
