// Copyright (C) 2025 Horia73
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Horia73/adaptive-thermostat/internal/config"
	"github.com/Horia73/adaptive-thermostat/internal/engine"
	"github.com/Horia73/adaptive-thermostat/internal/history"
	"github.com/Horia73/adaptive-thermostat/internal/metrics"
	"github.com/Horia73/adaptive-thermostat/internal/modbusio"
	"github.com/Horia73/adaptive-thermostat/internal/mqtt"
	"github.com/Horia73/adaptive-thermostat/internal/store"
	"github.com/Horia73/adaptive-thermostat/internal/weather"
	"github.com/Horia73/adaptive-thermostat/pkg/appctx"
	"github.com/Horia73/adaptive-thermostat/pkg/eventbus"
	"github.com/Horia73/adaptive-thermostat/pkg/logger"
	"github.com/Horia73/adaptive-thermostat/pkg/rootserv"
	"github.com/Horia73/adaptive-thermostat/pkg/service"
	"github.com/Horia73/adaptive-thermostat/pkg/sysmon"
)

func main() {

	rootdir := os.Getenv("PROJECT_ROOT")
	if rootdir == "" {
		rootdir = "."
	}

	logger.Init(filepath.Join(rootdir, "var/logs/thermostatd.log"))
	log := logger.New("Main")

	confPath := os.Getenv("THERMOSTAT_CONFIG")
	if confPath == "" {
		confPath = filepath.Join(rootdir, "var/config/thermostat.yml")
	}
	appConf, err := config.Load(confPath)
	if err != nil {
		log.Fatal("%v", err)
	}

	// use conf to pass eventbus to whoever needs it
	appConf.EventBus = eventbus.New()
	appConf.RootDir = rootdir

	ctx, ctxCancel := appctx.New()

	// init services
	server := rootserv.New(appConf.Server.HTTPAddr)
	sysMonitorService := sysmon.New()
	mqttService := mqtt.New(appConf)
	weatherService := weather.New(appConf)
	metricsService := metrics.New(appConf)

	var modbusService *modbusio.Service
	if appConf.Modbus.ConfigFile != "" {
		modbusService = modbusio.New(appConf)
	}

	// actuator references route to the backend named by their prefix
	resolve := func(ref string) (engine.Switch, error) {
		switch {
		case strings.HasPrefix(ref, modbusio.RefPrefix):
			if modbusService == nil {
				return nil, fmt.Errorf("%q: modbus backend not configured", ref)
			}
			return modbusService.Switch(strings.TrimPrefix(ref, modbusio.RefPrefix)), nil
		case strings.HasPrefix(ref, "mqtt:"):
			return mqttService.Switch(strings.TrimPrefix(ref, "mqtt:")), nil
		default:
			// bare references are MQTT command topics
			return mqttService.Switch(ref), nil
		}
	}

	var stateStore engine.StateStore
	var sqlStore *store.Store
	if appConf.Store.Path != "" {
		sqlStore, err = store.Open(appConf.Store.Path)
		if err != nil {
			log.Fatal("%v", err)
		}
		stateStore = sqlStore
	}

	engineService, err := engine.New(appConf, resolve, stateStore, engine.NewRealClock())
	if err != nil {
		log.Fatal("%v", err)
	}

	// attach web handler enabled services
	server.Attach("/", "Zone Dashboard", engineService)
	server.Attach("/logger", "Logger", logger.WebService())
	server.Attach("/monitor", "System Monitor", sysMonitorService)
	server.Attach("/weather", "Weather Data", weatherService)
	server.Attach("/metrics", "Prometheus Metrics", metricsService.Handler())
	if modbusService != nil {
		server.Attach("/modbus", "Modbus Registers", modbusService)
	}

	// start runnable services
	runnables := []service.Runnable{
		mqttService,
		weatherService,
		engineService,
		metricsService,
		server,
	}
	if modbusService != nil {
		runnables = append(runnables, modbusService)
	}
	if appConf.History.InfluxURL != "" {
		runnables = append(runnables, history.New(appConf))
	}

	exitCh := service.Start(ctx, ctxCancel, runnables)

	// waits for all services to stop
	code := <-exitCh
	if sqlStore != nil {
		sqlStore.Close()
	}
	logger.Close()
	os.Exit(code)
}
