package main

import (
	"flag"
	"log"
	"log/slog"
	"path/filepath"
	"time"

	"mentorhub/bot"
	"mentorhub/impl/auth"
	"mentorhub/impl/core"
	"mentorhub/internal/config"
	"mentorhub/internal/database"
	"mentorhub/internal/http-server/api"
	"mentorhub/internal/metrics"
	"mentorhub/internal/stream"
	"mentorhub/internal/token"
	"mentorhub/lib/logger"
	"mentorhub/lib/sl"
)

const logFileName = "mentorhub.log"

func main() {
	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	lg := logger.SetupLogger(conf.Env, filepath.Join(*logPath, logFileName))
	lg.Info("starting mentorhub", slog.String("config", *configPath), slog.String("env", conf.Env))

	metrics.Init()

	var db core.Storage
	var botDb bot.Database
	switch {
	case conf.Mongo.Enabled:
		mongo := database.NewMongoClient(conf)
		db, botDb = mongo, mongo
		lg.Info("using mongo store", slog.String("database", conf.Mongo.Database))
	case conf.MySQL.Enabled:
		mysql, err := database.NewSQLClient(conf)
		if err != nil {
			log.Fatal("mysql store: ", err)
		}
		db, botDb = mysql, mysql
		lg.Info("using mysql store", slog.String("database", conf.MySQL.Database))
	default:
		log.Fatal("no store enabled in configuration")
	}

	tokens, err := token.New(conf.Auth.Secret, time.Duration(conf.Auth.TokenTTLHours)*time.Hour)
	if err != nil {
		log.Fatal("token service: ", err)
	}
	authService := auth.New(db, tokens)

	broadcaster := stream.New(lg, conf.Stream.BufferSize)
	handler := core.New(db, authService, broadcaster, lg, core.Config{
		InviteCodeLength:     conf.Invite.CodeLength,
		InviteDefaultMaxUses: conf.Invite.DefaultMaxUses,
	})

	if conf.Telegram.Enabled {
		tgBot, err := bot.NewTgBot(conf.Telegram.ApiKey, botDb, lg)
		if err != nil {
			lg.Error("telegram bridge", sl.Err(err))
		} else {
			tgBot.Start()
			handler.SetNotifier(tgBot)
			lg = slog.New(logger.NewNotifyHandler(lg.Handler(), tgBot, slog.LevelError))
			lg.Info("telegram bridge connected")
		}
	}

	if err = api.New(conf, lg, handler); err != nil {
		lg.Error("api server stopped", sl.Err(err))
	}
}
