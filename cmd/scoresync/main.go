package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bridgeworks/scoresync/sync"
)

type instance struct {
	cfg     sync.Config
	options sync.SyncOptions
	runtime sync.RuntimeConfig
	store   *sync.RedisCursorStore
	hubspot sync.HubSpotClient
	posthog sync.PostHogClient
}

func newInstance() (*instance, error) {
	runtime, err := sync.LoadRuntimeConfig()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(runtime.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %w", err)
	}
	defer f.Close()
	cfg, err := sync.LoadConfig(f)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := sync.NewRedisCursorStore(runtime.RedisURL, runtime.CursorPrefix)
	if err != nil {
		return nil, err
	}

	return &instance{
		cfg:     cfg,
		options: cfg.SyncOptions(),
		runtime: runtime,
		store:   store,
		hubspot: sync.HubSpotClient{APIKey: cfg.HubSpot.APIKey},
		posthog: sync.PostHogClient{
			InstanceURL:  cfg.PostHog.InstanceURL,
			APIToken:     cfg.PostHog.APIToken,
			ProjectToken: cfg.PostHog.ProjectToken,
		},
	}, nil
}

func (i *instance) worker() sync.Worker {
	return sync.Worker{
		Handler: sync.EventHandler{Options: i.options, HubSpot: i.hubspot},
		Reconciler: sync.ScoreReconciler{
			HubSpot: i.hubspot,
			PostHog: i.posthog,
			Cursor:  i.store,
		},
	}
}

func (i *instance) redisClientOpt() (asynq.RedisClientOpt, error) {
	redisOption, err := sync.ParseRedisURL(i.runtime.RedisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("error parsing Redis URL: %w", err)
	}
	return asynq.RedisClientOpt{
		Addr:      redisOption.Addr,
		Password:  redisOption.Password,
		DB:        redisOption.DB,
		TLSConfig: redisOption.TLSConfig,
	}, nil
}

func runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Verify credentials, then start the worker and tick scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := newInstance()
			if err != nil {
				return err
			}

			// Activation: a failed probe blocks startup.
			if err := sync.VerifySetup(i.hubspot, i.store, cmd.Context()); err != nil {
				return err
			}

			clientOpt, err := i.redisClientOpt()
			if err != nil {
				return err
			}
			srv := asynq.NewServer(clientOpt, asynq.Config{
				// One worker keeps at most one reconciliation tick in flight.
				Concurrency: 1,
				Queues:      map[string]int{"default": 1},
			})
			mux := asynq.NewServeMux()
			i.worker().Register(mux)

			if i.cfg.ScoreSyncEnabled() {
				scheduler := asynq.NewScheduler(clientOpt, nil)
				if _, err := scheduler.Register(i.runtime.TickSchedule, sync.NewReconcileTickTask()); err != nil {
					return err
				}
				if err := scheduler.Start(); err != nil {
					return err
				}
				defer scheduler.Shutdown()
			} else {
				logrus.Info("analytics settings incomplete, score sync disabled")
			}

			return srv.Run(mux)
		},
	}
}

func verifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Probe CRM connectivity and reset the sync cursor",
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := newInstance()
			if err != nil {
				return err
			}
			if err := sync.VerifySetup(i.hubspot, i.store, cmd.Context()); err != nil {
				return err
			}
			fmt.Println("CRM connectivity verified, cursor state cleared")
			return nil
		},
	}
}

func resetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear the persisted next-page token and completion date",
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := newInstance()
			if err != nil {
				return err
			}
			if err := i.store.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("cursor state cleared")
			return nil
		},
	}
}

func sendCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "send <event.json>",
		Short: "Replay a captured analytics event through the contact upsert path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := newInstance()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var event sync.InboundEvent
			if err := json.Unmarshal(data, &event); err != nil {
				return fmt.Errorf("malformed event file %w", err)
			}
			handler := sync.EventHandler{Options: i.options, HubSpot: i.hubspot}
			return handler.HandleEvent(event, cmd.Context())
		},
	}
}

func mappingsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mappings",
		Short: "Print the effective property mapping table as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := newInstance()
			if err != nil {
				return err
			}
			doc := sync.GenerateMappingDocumentation(i.options)
			out, err := doc.FormatCSV()
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
}

func main() {
	root := &cobra.Command{
		Use:   "scoresync",
		Short: "Bidirectional bridge between an analytics event stream and a CRM contact database",
	}
	root.AddCommand(runCommand(), verifyCommand(), resetCommand(), sendCommand(), mappingsCommand())
	if err := root.Execute(); err != nil {
		logrus.Fatal(err)
	}
}
