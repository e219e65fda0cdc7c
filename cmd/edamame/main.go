// Copyright (C) 2026 The Edamame Authors.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edamame-kv/edamame/internal/cache"
	"github.com/edamame-kv/edamame/internal/config"
	"github.com/edamame-kv/edamame/internal/server"
)

var version = "development"

func main() {
	port := flag.Int("p", 7500, "TCP port to listen on")
	addr := flag.String("l", "0.0.0.0", "address to listen on")
	numObjects := flag.Int("n", 1024, "expected number of objects (sizes the table)")
	readerSlots := flag.Int("t", 4, "number of concurrent reader slots (roughly, worker threads)")
	cfgPath := flag.String("c", "", "optional YAML config file")
	swiperSeconds := flag.Int("swiper-interval", 1, "background sweep interval in seconds")
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)

	cfg := config.Config{
		Addr:          fmt.Sprintf("%s:%d", *addr, *port),
		NumObjects:    *numObjects,
		ReaderSlots:   *readerSlots,
		SwiperSeconds: *swiperSeconds,
	}
	if *cfgPath != "" {
		fileCfg, err := config.Load(*cfgPath)
		if err != nil {
			logger.Fatal(err)
		}
		// file values replace flag defaults; flags actually given win.
		explicit := config.Config{}
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "p", "l":
				explicit.Addr = cfg.Addr
			case "n":
				explicit.NumObjects = cfg.NumObjects
			case "t":
				explicit.ReaderSlots = cfg.ReaderSlots
			case "swiper-interval":
				explicit.SwiperSeconds = cfg.SwiperSeconds
			}
		})
		cfg = cfg.Merge(*fileCfg).Merge(explicit)
	}

	table := cache.NewTable(cache.Options{
		NumObjects:    cfg.NumObjects,
		InlineKeylen:  cfg.InlineKeylen,
		InlineVallen:  cfg.InlineVallen,
		SwiperReaders: cfg.ReaderSlots,
		Logger:        logger,
	})

	swiper := cache.NewSwiper(table, time.Duration(cfg.SwiperSeconds)*time.Second, 0)
	swiper.Start()
	defer swiper.Stop()

	srv := server.New(table, logger)
	errc := make(chan error, 1)
	go func() {
		logger.Printf("edamame %s starting on %s", version, cfg.Addr)
		errc <- srv.ListenAndServe(cfg.Addr)
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		if err != nil {
			logger.Fatal(err)
		}
	case <-sigc:
		logger.Println("shutting down")
		if err := srv.Close(); err != nil {
			logger.Printf("close: %s", err)
		}
		done := make(chan struct{})
		go func() {
			srv.Wait()
			close(done)
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		select {
		case <-done:
		case <-ctx.Done():
			logger.Println("shutdown deadline exceeded, exiting anyway")
		}
	}
}
