// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package telemetry publishes the spot temperatures and snapshot events to an
// MQTT broker.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/dboth/thermalplant/acquire"
	"github.com/dboth/thermalplant/mailbox"
	"github.com/dboth/thermalplant/snapshot"
	"github.com/dboth/thermalplant/thermal"
)

// Config is the telemetry section of the configuration file.
type Config struct {
	// Broker is the MQTT broker URL, e.g. tcp://localhost:1883. Telemetry is
	// disabled when empty.
	Broker   string        `yaml:"broker"`
	Topic    string        `yaml:"topic"`
	ClientID string        `yaml:"client_id"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Interval time.Duration `yaml:"interval"`
	QoS      byte          `yaml:"qos"`
}

// Enabled returns true if a broker is configured.
func (c *Config) Enabled() bool {
	return c.Broker != ""
}

// Stats are counters about the messages sent.
type Stats struct {
	Sent     int
	Failures int
	LastFail error
}

// Reading is the payload published on <topic>/spots.
type Reading struct {
	Seq    uint64        `json:"seq"`
	Time   time.Time     `json:"time"`
	Mode   acquire.Mode  `json:"mode"`
	Min    *thermal.Spot `json:"min"`
	Max    *thermal.Spot `json:"max"`
	Center *thermal.Spot `json:"center"`
}

// NewReading returns the payload for f, or nil if f carries no temperature.
func NewReading(f *acquire.Frame) *Reading {
	if f == nil || f.Info == nil {
		return nil
	}
	i := *f.Info
	return &Reading{Seq: f.Seq, Time: f.Time, Mode: f.Mode, Min: &i.Min, Max: &i.Max, Center: &i.Center}
}

// publisher is the subset of mqtt.Client used.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher sends telemetry to a broker.
type Publisher struct {
	config Config
	client publisher
	close  func()

	mu    sync.Mutex
	stats Stats
}

// Connect connects to the broker.
func Connect(cfg Config) (*Publisher, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "thermalplant-" + uuid.NewString()
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		log.Printf("telemetry: connection to %s lost: %v", cfg.Broker, err)
	}
	c := mqtt.NewClient(opts)
	t := c.Connect()
	if !t.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("telemetry: %s: connection timeout", cfg.Broker)
	}
	if err := t.Error(); err != nil {
		return nil, fmt.Errorf("telemetry: %s: %w", cfg.Broker, err)
	}
	log.Printf("telemetry: sending to %s as %s", cfg.Broker, cfg.ClientID)
	p := newPublisher(cfg, c)
	p.close = func() { c.Disconnect(250) }
	return p, nil
}

func newPublisher(cfg Config, c publisher) *Publisher {
	if cfg.Topic == "" {
		cfg.Topic = "thermalplant"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Publisher{config: cfg, client: c}
}

// Run publishes the latest spot temperatures every Interval until ctx is done
// or the mailbox is closed. Frames without temperature are skipped.
func (p *Publisher) Run(ctx context.Context, frames *mailbox.Mailbox[*acquire.Frame]) {
	t := time.NewTicker(p.config.Interval)
	defer t.Stop()
	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		f, seq, ok := frames.Peek()
		if !ok || seq == last {
			continue
		}
		last = seq
		if r := NewReading(f); r != nil {
			p.send("spots", false, r)
		}
	}
}

// Snapshot announces a saved snapshot. It can be used as snapshot.Saver.OnSave.
func (p *Publisher) Snapshot(e *snapshot.Entry) {
	p.send("snapshots", false, e)
}

// Stats returns a copy of the counters.
func (p *Publisher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Publisher) Close() {
	if p.close != nil {
		p.close()
	}
}

func (p *Publisher) send(sub string, retained bool, v interface{}) {
	b, err := json.Marshal(v)
	if err == nil {
		t := p.client.Publish(p.config.Topic+"/"+sub, p.config.QoS, retained, b)
		if !t.WaitTimeout(5 * time.Second) {
			err = fmt.Errorf("telemetry: %s/%s: timed out", p.config.Topic, sub)
		} else {
			err = t.Error()
		}
	}
	p.mu.Lock()
	if err != nil {
		p.stats.Failures++
		p.stats.LastFail = err
	} else {
		p.stats.Sent++
	}
	p.mu.Unlock()
	if err != nil {
		log.Printf("telemetry: %v", err)
	}
}
