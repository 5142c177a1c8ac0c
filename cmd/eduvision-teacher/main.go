// eduvision-teacher 教师端：订阅监控网关的学生事件广播，并周期性输出仪表盘快照。
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AniketZimane/EduVision-AI/internal/aggregator"
	"github.com/AniketZimane/EduVision-AI/internal/config"
	"github.com/AniketZimane/EduVision-AI/internal/models"
	"github.com/AniketZimane/EduVision-AI/internal/session"

	logpkg "github.com/AniketZimane/EduVision-AI/common/logger"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	flagSet := pflag.NewFlagSet("eduvision-teacher", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.Observer.GatewayURL, "gateway", cfg.Observer.GatewayURL, "monitor gateway base URL (ws:// or wss://)")
	flagSet.DurationVar(&cfg.Observer.ReportPeriod, "report-period", cfg.Observer.ReportPeriod, "how often to log the dashboard")
	flagSet.StringVar(&cfg.Observer.Timezone, "timezone", cfg.Observer.Timezone, "IANA timezone for chart time labels")
	flagSet.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level (debug, info, warn, error)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	log, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "eduvision-teacher")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	location, err := time.LoadLocation(cfg.Observer.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Observer.Timezone, err)
	}

	terminal := make(chan session.State, 1)
	sess := session.NewTeacherSession(session.TeacherOptions{
		Options: session.Options{
			URL: strings.TrimRight(cfg.Observer.GatewayURL, "/") + "/ws/teacher",
			OnStateChange: func(s session.State) {
				if s.Terminal() {
					select {
					case terminal <- s:
					default:
					}
				}
			},
		},
		Location: location,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := sess.Start(ctx); err != nil {
		return fmt.Errorf("failed to start teacher session: %w", err)
	}
	log.Info("Teacher session started", zap.String("session_id", sess.ID()))

	ticker := time.NewTicker(cfg.Observer.ReportPeriod)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigChan:
			log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
			sess.Stop()
			return nil
		case state := <-terminal:
			log.Warn("Session ended", zap.Stringer("state", state), zap.Error(sess.Err()))
			sess.Stop()
			if state == session.StateErrored {
				return sess.Err()
			}
			return nil
		case <-ticker.C:
			report(log, sess.Dashboard())
		}
	}
}

// report 输出一次仪表盘快照
func report(log *zap.Logger, d aggregator.Dashboard) {
	if d.Waiting() {
		log.Info("Waiting for student data", zap.Int("data_points", d.DataPoints), zap.Uint64("received", d.Received))
		return
	}

	fields := []zap.Field{
		zap.String("headline", d.Headline),
		zap.String("status", string(d.Current.Status)),
		zap.String("last_update", d.LastUpdate.Format(aggregator.TimeLabelLayout)),
		zap.Int("data_points", d.DataPoints),
		zap.Uint64("received", d.Received),
		zap.Strings("recent_alerts", labels(d.RecentAlerts)),
		zap.Strings("recent_confused", labels(d.RecentConfused)),
	}
	if len(d.Points) > 0 {
		fields = append(fields, zap.Int("engagement", d.Points[len(d.Points)-1].EngagementScore))
	}
	if d.AlertMessage != "" {
		log.Warn("Dashboard", append(fields, zap.String("alert", d.AlertMessage))...)
		return
	}
	log.Info("Dashboard", fields...)
}

func labels(points []models.ChartPoint) []string {
	out := make([]string, 0, len(points))
	for _, p := range points {
		out = append(out, p.TimeLabel)
	}
	return out
}
