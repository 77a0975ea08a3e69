// Copyright 2021 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Reference server binary.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"flag"
	"github.com/GoogleCloudPlatform/veil/config"
	"github.com/GoogleCloudPlatform/veil/server"
	glog "github.com/golang/glog"
)

var (
	configFile    = flag.String("config-file", "", "Path to a YAML server config. Optional.")
	listenAddress = flag.String("listen-address", "", "Address to listen on, overriding the config file.")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	cfg := config.Default()
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			glog.Exitf("Failed to load config: %v", err)
		}
	}
	if *listenAddress != "" {
		cfg.ListenAddress = *listenAddress
	}

	srv, err := server.New(cfg)
	if err != nil {
		glog.Exitf("Failed to start server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	glog.Infof("Starting veil server on %v.", srv.Addr())
	if err := srv.Serve(ctx); err != nil {
		glog.Exitf("Server stopped: %v", err)
	}
}
