package controller

import (
	"fmt"

	"github.com/dyluth/docket/internal/execute"
	"github.com/dyluth/docket/internal/governance"
	"github.com/dyluth/docket/internal/producer"
	"github.com/dyluth/docket/internal/snapshot"
	"github.com/dyluth/docket/internal/validate"
	"github.com/dyluth/docket/pkg/schedule"
)

// NewScheduleController builds a controller over client with every built-in
// producer and validator, the replacement proposer, the Redis scope lock and
// the snapshot archiver. extra options are applied last and may override any
// of these.
func NewScheduleController(cfg *governance.Config, client *schedule.Client, extra ...Option) (*Controller, error) {
	if cfg == nil {
		return nil, fmt.Errorf("governance config is required")
	}
	opts := make([]Option, 0, 16+len(extra))
	opts = append(opts, builtinOptions(cfg, client)...)
	opts = append(opts,
		WithReplacer(producer.NewAutoReplacementProposer(client)),
		WithExecutor(execute.New(client)),
		WithLocker(NewRedisLocker(client, cfg.LockTTL())),
		WithArchiver(snapshot.New(client).WithLockTTL(cfg.LockTTL())),
	)
	opts = append(opts, extra...)

	return New(cfg, client.InstanceName(), opts...)
}

// builtinOptions registers the built-in producers. Those that also validate
// are registered as validators, judging claims under cfg's capabilities.
func builtinOptions(cfg *governance.Config, store validate.Store) []Option {
	var opts []Option
	for _, p := range producer.Builtins(store, cfg, nil) {
		opts = append(opts, WithProducer(p))
		if v, ok := p.(validate.Validator); ok {
			opts = append(opts, WithValidator(v))
		}
	}
	return opts
}
