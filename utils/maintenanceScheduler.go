package utils

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

// logScheduler logs scheduler events with timestamp
func logScheduler(message string) {
	log.Printf("[MAINTENANCE-SCHEDULER %s] %s", time.Now().Format(time.RFC3339), message)
}

// CacheSweeper drops expired entries of a process-local cache.
type CacheSweeper interface {
	Sweep() int
}

// TopicProvisioner creates the broker topic once it becomes reachable.
type TopicProvisioner interface {
	Enabled() bool
	TopicReady() bool
	EnsureTopic(ctx context.Context) error
}

// sweepCache removes expired cache entries
func sweepCache(sweeper CacheSweeper) {
	if removed := sweeper.Sweep(); removed > 0 {
		logScheduler("Swept expired cache entries: " + strconv.Itoa(removed))
	}
}

// retryTopic provisions the event topic if startup could not
func retryTopic(p TopicProvisioner, timeout time.Duration) {
	if !p.Enabled() || p.TopicReady() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := p.EnsureTopic(ctx); err != nil {
		logScheduler("Topic provisioning still failing: " + err.Error())
		return
	}
	logScheduler("Topic provisioned")
}

// StartCacheSweeper runs every minute for the in-memory cache backend
func StartCacheSweeper(c *cron.Cron, sweeper CacheSweeper) {
	c.AddFunc("@every 1m", func() {
		sweepCache(sweeper)
	})
	logScheduler("Cache sweeper started - runs every minute")
}

// StartTopicRetry runs every minute until the topic exists
func StartTopicRetry(c *cron.Cron, p TopicProvisioner, timeout time.Duration) {
	c.AddFunc("@every 1m", func() {
		retryTopic(p, timeout)
	})
	logScheduler("Topic provisioning retry started - runs every minute")
}

// InitializeMaintenanceSchedulers starts the background jobs that apply.
// sweeper and provisioner may be nil.
func InitializeMaintenanceSchedulers(sweeper CacheSweeper, provisioner TopicProvisioner, timeout time.Duration) *cron.Cron {
	logScheduler("Initializing maintenance schedulers...")

	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))

	if sweeper != nil {
		StartCacheSweeper(c, sweeper)
	}
	if provisioner != nil && provisioner.Enabled() {
		StartTopicRetry(c, provisioner, timeout)
	}

	c.Start()

	logScheduler("All maintenance schedulers initialized successfully")
	return c
}
