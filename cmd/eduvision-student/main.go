// eduvision-student 学生端：按固定节拍采集画面上送到监控网关，并输出分析结果。
//
// 画面来源：--source-dir 指定的 JPEG/PNG 目录（循环播放），未指定时使用合成画面。
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/AniketZimane/EduVision-AI/internal/capture"
	"github.com/AniketZimane/EduVision-AI/internal/config"
	"github.com/AniketZimane/EduVision-AI/internal/models"
	"github.com/AniketZimane/EduVision-AI/internal/projection"
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

	// 命令行参数覆盖环境变量
	flagSet := pflag.NewFlagSet("eduvision-student", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.Observer.GatewayURL, "gateway", cfg.Observer.GatewayURL, "monitor gateway base URL (ws:// or wss://)")
	flagSet.StringVar(&cfg.Capture.SourceDir, "source-dir", cfg.Capture.SourceDir, "directory of JPEG/PNG frames to replay (default: synthetic frames)")
	flagSet.DurationVar(&cfg.Capture.Interval, "interval", cfg.Capture.Interval, "capture interval")
	flagSet.DurationVar(&cfg.Capture.Warmup, "warmup", cfg.Capture.Warmup, "delay before the first capture after connecting")
	flagSet.IntVar(&cfg.Capture.JPEGQuality, "quality", cfg.Capture.JPEGQuality, "JPEG quality (1-100)")
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

	log, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "eduvision-student")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	var source capture.Source
	if cfg.Capture.SourceDir != "" {
		source = capture.NewDirSource(cfg.Capture.SourceDir)
	} else {
		source = capture.NewPatternSource(cfg.Capture.Width, cfg.Capture.Height)
	}

	terminal := make(chan session.State, 1)
	sess := session.NewStudentSession(session.StudentOptions{
		Options: session.Options{
			URL: strings.TrimRight(cfg.Observer.GatewayURL, "/") + "/ws/student",
			OnStateChange: func(s session.State) {
				if s.Terminal() {
					select {
					case terminal <- s:
					default:
					}
				}
			},
		},
		Source:  source,
		Encoder: capture.NewJPEGEncoder(cfg.Capture.JPEGQuality),
		Capture: capture.Options{Interval: cfg.Capture.Interval, Warmup: cfg.Capture.Warmup},
		OnAnalysis: func(event models.AnalysisEvent, view projection.StudentView) {
			fields := []zap.Field{
				zap.String("status", view.StatusLabel),
				zap.String("color", string(view.StatusColor)),
				zap.String("message", view.Message),
				zap.Int("face_count", view.FaceCount),
				zap.String("gaze", view.GazeDirection),
				zap.String("emotion", view.Emotion),
			}
			if view.AlertMessage != "" {
				log.Warn("Proctor alert", append(fields, zap.String("alert", view.AlertMessage))...)
				return
			}
			log.Info("Analysis", fields...)
		},
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := sess.Start(ctx); err != nil {
		return fmt.Errorf("failed to start student session: %w", err)
	}
	log.Info("Student session started", zap.String("session_id", sess.ID()))

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case state := <-terminal:
		log.Warn("Session ended", zap.Stringer("state", state), zap.Error(sess.Err()))
	}
	sess.Stop()

	stats := sess.CaptureStats()
	log.Info("Student session stopped",
		zap.Uint64("ticks", stats.Ticks),
		zap.Uint64("frames_sent", stats.Sent),
		zap.Uint64("not_ready", stats.NotReady),
		zap.Uint64("capture_errors", stats.CaptureErrors),
	)
	if sess.State() == session.StateErrored {
		return sess.Err()
	}
	return nil
}
