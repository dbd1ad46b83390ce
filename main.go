package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"haruki-vroid-deobfuscator/api"
	"haruki-vroid-deobfuscator/config"
	"haruki-vroid-deobfuscator/job"
	harukiLogger "haruki-vroid-deobfuscator/utils/logger"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/spf13/pflag"
)

func serve(mainLogger *harukiLogger.Logger) int {
	app := fiber.New(fiber.Config{
		BodyLimit:   200 * 1024 * 1024,
		JSONEncoder: sonic.Marshal,
		JSONDecoder: sonic.Unmarshal,
	})

	if config.Cfg.Backend.AccessLog != "" {
		logCfg := logger.Config{Format: config.Cfg.Backend.AccessLog}
		if config.Cfg.Backend.AccessLogPath != "" {
			accessLogFile, err := os.OpenFile(config.Cfg.Backend.AccessLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				mainLogger.Errorf("failed to open access log file: %v", err)
				return 1
			}
			defer func(accessLogFile *os.File) {
				_ = accessLogFile.Close()
			}(accessLogFile)
			logCfg.Stream = accessLogFile
		}
		app.Use(logger.New(logCfg))
	}

	api.RegisterRoutes(app)

	addr := fmt.Sprintf("%s:%d", config.Cfg.Backend.Host, config.Cfg.Backend.Port)
	listenCfg := fiber.ListenConfig{DisableStartupMessage: true}
	if config.Cfg.Backend.SSL {
		listenCfg.CertFile = config.Cfg.Backend.SSLCert
		listenCfg.CertKeyFile = config.Cfg.Backend.SSLKey
	}
	mainLogger.Infof("Listening on %s", addr)
	if err := app.Listen(addr, listenCfg); err != nil {
		mainLogger.Errorf("failed to start server: %v", err)
		return 1
	}
	return 0
}

func runOnce(mainLogger *harukiLogger.Logger, target string, noCache bool, motions bool) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	deobfuscateJob := job.NewHarukiVRoidDeobfuscateJob(ctx, config.Cfg)
	defer deobfuscateJob.Close()
	result, err := deobfuscateJob.Run(target, job.Options{
		UseCache:        !noCache,
		DownloadMotions: motions || config.Cfg.Hub.DownloadMotions,
	})
	if err != nil {
		mainLogger.Errorf("Deobfuscation failed: %v", err)
		return 1
	}
	mainLogger.Infof("Saved %s", result.OutputPath)
	return 0
}

func run() int {
	configPath := pflag.String("config", config.DefaultConfigPath, "path to the YAML configuration")
	serveMode := pflag.Bool("serve", false, "start the HTTP API")
	noCache := pflag.Bool("no-cache", false, "ignore cached containers")
	motions := pflag.Bool("motions", false, "also download the VRMA motions of the model")
	pflag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "usage: %s [flags] <hub-url-or-id>\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if err := config.Load(*configPath); err != nil {
		harukiLogger.NewLogger("Main", "INFO", os.Stdout).Errorf("%v", err)
		return 1
	}

	var loggerWriter io.Writer = os.Stdout
	if config.Cfg.Backend.MainLogFile != "" {
		logFile, err := os.OpenFile(config.Cfg.Backend.MainLogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			mainLogger := harukiLogger.NewLogger("Main", config.Cfg.Backend.LogLevel, os.Stdout)
			mainLogger.Errorf("failed to open main log file: %v", err)
			return 1
		}
		loggerWriter = io.MultiWriter(os.Stdout, logFile)
		defer func(logFile *os.File) {
			_ = logFile.Close()
		}(logFile)
	}
	harukiLogger.Configure(config.Cfg.Backend.LogLevel, loggerWriter)
	mainLogger := harukiLogger.NewLogger("Main", config.Cfg.Backend.LogLevel, loggerWriter)
	mainLogger.Infof("========================= Haruki VRoid Deobfuscator %s =========================", config.Version)
	mainLogger.Infof("Powered By Haruki Dev Team")

	if *serveMode {
		return serve(mainLogger)
	}
	if pflag.NArg() != 1 {
		pflag.Usage()
		return 2
	}
	return runOnce(mainLogger, pflag.Arg(0), *noCache, *motions)
}

func main() {
	os.Exit(run())
}
