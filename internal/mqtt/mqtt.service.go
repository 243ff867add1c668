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

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/Horia73/adaptive-thermostat/internal/config"
	"github.com/Horia73/adaptive-thermostat/internal/engine"
	"github.com/Horia73/adaptive-thermostat/internal/events"
	"github.com/Horia73/adaptive-thermostat/pkg/eventbus"
	"github.com/Horia73/adaptive-thermostat/pkg/logger"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Service bridges the broker and the event bus: sensor topics become
// SensorUpdate events, zone snapshots become retained state topics, and
// actuator switches publish ON/OFF commands.
type Service struct {
	conf   *config.MQTTConfig
	log    *logger.Logger
	bus    *eventbus.Bus
	client paho.Client

	// sensor topics to subscribe, deduplicated
	topics []string
}

func New(appConf *config.Config) *Service {
	s := &Service{
		conf: &appConf.MQTT,
		log:  logger.New("MQTT"),
		bus:  appConf.EventBus,
	}

	seen := make(map[string]bool)
	sub := func(entity string) {
		if entity == "" || isModbusRef(entity) || seen[entity] {
			return
		}
		seen[entity] = true
		s.topics = append(s.topics, entity)
	}
	for i := range appConf.Zones {
		z := &appConf.Zones[i]
		sub(z.TempSensor)
		sub(z.OutdoorSensor)
		sub(z.BackupOutdoorSensor)
		sub(z.HumiditySensor)
		sub(z.DoorWindowSensor)
		sub(z.MotionSensor)
	}

	opts := paho.NewClientOptions().
		AddBroker(appConf.MQTT.Broker).
		SetClientID(appConf.MQTT.ClientID).
		SetUsername(appConf.MQTT.Username).
		SetPassword(appConf.MQTT.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			s.log.Error("connection lost: %v", err)
		})
	s.client = paho.NewClient(opts)
	return s
}

func isModbusRef(ref string) bool {
	return len(ref) > 7 && ref[:7] == "modbus:"
}

// onConnect (re)subscribes every sensor topic. Runs on initial connect
// and on every reconnect.
func (s *Service) onConnect(client paho.Client) {
	s.log.Info("connected to %s", s.conf.Broker)
	for _, topic := range s.topics {
		t := topic
		token := client.Subscribe(t, s.conf.QoS, func(_ paho.Client, msg paho.Message) {
			s.handleMessage(t, msg)
		})
		go func() {
			if token.Wait() && token.Error() != nil {
				s.log.Error("subscribe %s: %v", t, token.Error())
			}
		}()
	}
}

func (s *Service) handleMessage(topic string, msg paho.Message) {
	ev := ParseSensorPayload(topic, msg.Payload(), time.Now())
	if !ev.Valid {
		s.log.Debug("%s: unavailable or unparsable payload %q", topic, msg.Payload())
	}
	s.bus.Publish(events.TopicSensors, ev)
}

func (s *Service) Run(ctx context.Context) {
	s.log.Info("Running...")

	token := s.client.Connect()
	if token.WaitTimeout(connectTimeout) && token.Error() != nil {
		// connect retry keeps trying in the background
		s.log.Error("connect: %v", token.Error())
	}

	stateCh, unsub := s.bus.Subscribe(ctx, events.TopicZoneState, true)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			s.client.Disconnect(1000)
			s.log.Info("Stopped")
			return
		case ev, ok := <-stateCh:
			if !ok {
				return
			}
			if st, ok := ev.(events.ZoneState); ok {
				s.publishState(st)
			}
		}
	}
}

// publishState publishes the zone snapshot as a retained JSON document so
// late subscribers see the current state immediately.
func (s *Service) publishState(st events.ZoneState) {
	payload, err := json.Marshal(st)
	if err != nil {
		s.log.Error("marshal state %s: %v", st.ZoneID, err)
		return
	}
	topic := s.conf.StatePrefix + "/" + st.ZoneID
	token := s.client.Publish(topic, s.conf.QoS, true, payload)
	go func() {
		if token.WaitTimeout(publishTimeout) && token.Error() != nil {
			s.log.Error("publish %s: %v", topic, token.Error())
		}
	}()
}

// Switch returns an actuator switch that publishes ON/OFF to a command
// topic. QoS 1 so a command is not lost on a flaky link.
func (s *Service) Switch(topic string) engine.Switch {
	return func(on bool) error {
		payload := "OFF"
		if on {
			payload = "ON"
		}
		token := s.client.Publish(topic, 1, false, payload)
		if !token.WaitTimeout(publishTimeout) {
			return fmt.Errorf("publish %s: timeout", topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
		return nil
	}
}
