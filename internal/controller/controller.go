// Package controller runs the arbitration pipeline: it owns the governance
// config and the producer and validator registries, drives each command
// through its phases, and is the only caller of the executor.
package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/dyluth/docket/internal/command"
	"github.com/dyluth/docket/internal/execute"
	"github.com/dyluth/docket/internal/governance"
	"github.com/dyluth/docket/internal/producer"
	"github.com/dyluth/docket/internal/validate"
)

// Executor applies an approved run. *execute.Executor satisfies it.
type Executor interface {
	Execute(ctx context.Context, cmd *command.Command, fields map[string]any) (*execute.Result, error)
}

// Controller is the central pipeline. One instance serves any number of
// concurrent runs; its registries and config never change after New.
type Controller struct {
	config       *governance.Config
	instanceName string
	producers    *producer.Registry
	validators   []validate.Validator
	replacer     producer.Replacer
	executor     Executor
	locker       Locker
	archiver     Archiver
	triggers     map[string][]string
}

// Option configures a Controller.
type Option func(*Controller) error

// WithProducer registers a producer. Names must be unique.
func WithProducer(p producer.Producer) Option {
	return func(c *Controller) error {
		return c.producers.Register(p)
	}
}

// WithValidator registers a validator. Validators run in every run.
func WithValidator(v validate.Validator) Option {
	return func(c *Controller) error {
		if v == nil {
			return fmt.Errorf("validator cannot be nil")
		}
		c.validators = append(c.validators, v)
		return nil
	}
}

// WithReplacer designates the single auto-replacement producer.
func WithReplacer(r producer.Replacer) Option {
	return func(c *Controller) error {
		if c.replacer != nil {
			return fmt.Errorf("replacer already set to %q", c.replacer.Name())
		}
		c.replacer = r
		return nil
	}
}

// WithExecutor sets the single writer. Required.
func WithExecutor(e Executor) Option {
	return func(c *Controller) error {
		c.executor = e
		return nil
	}
}

// WithLocker replaces the default in-process scope locker.
func WithLocker(l Locker) Option {
	return func(c *Controller) error {
		c.locker = l
		return nil
	}
}

// WithArchiver sets the collaborator notified after every successful mutating run.
func WithArchiver(a Archiver) Option {
	return func(c *Controller) error {
		c.archiver = a
		return nil
	}
}

// WithTrigger overrides the producer sequence for one action.
func WithTrigger(action string, producers ...string) Option {
	return func(c *Controller) error {
		if action == "" {
			return fmt.Errorf("trigger action cannot be empty")
		}
		c.triggers[action] = append([]string(nil), producers...)
		return nil
	}
}

// New creates a controller. Every producer named in the governance
// capabilities must be registered (as a producer or as the replacer).
func New(cfg *governance.Config, instanceName string, opts ...Option) (*Controller, error) {
	if cfg == nil {
		return nil, fmt.Errorf("governance config is required")
	}

	c := &Controller{
		config:       cfg,
		instanceName: instanceName,
		producers:    producer.NewRegistry(),
		triggers:     DefaultTriggers(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if c.locker == nil {
		c.locker = NewLocalLocker()
	}

	for _, name := range cfg.Producers() {
		if _, ok := c.producers.Get(name); ok {
			continue
		}
		if c.replacer != nil && c.replacer.Name() == name {
			continue
		}
		return nil, fmt.Errorf("governance config names unknown producer %q", name)
	}

	for _, name := range c.producers.Names() {
		if len(cfg.Allowed(name)) == 0 {
			if _, listed := cfg.Capabilities[name]; !listed {
				log.Printf("[Controller] WARN: producer %q has no capabilities; its claims will be dropped", name)
			}
		}
	}

	return c, nil
}

// Config returns the governance config the controller was built with.
func (c *Controller) Config() *governance.Config {
	return c.config
}

// logEvent logs a structured event in JSON format.
func (c *Controller) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "controller"
	data["event_type"] = eventType
	data["instance"] = c.instanceName

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Controller] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
