package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/helmsman/internal/scheduler"
)

// pipelineJob adapts the orchestrator to the scheduler
type pipelineJob struct {
	app *app
}

func (j *pipelineJob) Name() string { return "nightly_pipeline" }

func (j *pipelineJob) Run() {
	report := j.app.orchestrator.Run(context.Background())
	if report.Failed() {
		j.app.log.Error().Str("report", report.String()).Msg("Pipeline run had failing stages")
	}
}

// monitorJob adapts the intraday monitor to the scheduler
type monitorJob struct {
	app *app
}

func (j *monitorJob) Name() string { return "intraday_monitor" }

func (j *monitorJob) Run() {
	if err := j.app.monitor.Sweep(time.Now()); err != nil {
		j.app.log.Error().Err(err).Msg("Monitor sweep failed")
	}
}

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline and monitor on their cron schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			sched := scheduler.New(a.log)
			if err := sched.Register(a.cfg.PipelineCron, &pipelineJob{app: a}); err != nil {
				return err
			}
			if err := sched.Register(a.cfg.MonitorCron, &monitorJob{app: a}); err != nil {
				return err
			}

			sched.Start()
			defer sched.Stop()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			a.log.Info().Msg("Shutting down")
			return nil
		},
	}
}
