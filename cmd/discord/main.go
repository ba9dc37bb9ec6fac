// cmd/discord/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"soundbort/internal/command"
	"soundbort/internal/command/sound"
	"soundbort/internal/config"
	"soundbort/internal/discord"
	"soundbort/internal/fetch"
	"soundbort/internal/files"
	"soundbort/internal/playback"
	"soundbort/internal/soundboard"
	"soundbort/internal/storage"
	"soundbort/internal/version"
	"soundbort/internal/voice"
	"soundbort/internal/web"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatal(err)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Debug {
		zcfg = zap.NewDevelopmentConfig()
	}
	zl, err := zcfg.Build()
	if err != nil {
		log.Fatal(err)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	logger.Infow("starting", "app", version.AppName, "version", version.Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalw("cannot create pgx pool", "err", err)
	}
	defer pool.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	store, err := storage.NewPostgres(pingCtx, pool)
	pingCancel()
	if err != nil {
		logger.Fatalw("postgres unavailable", "err", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatalw("schema setup failed", "err", err)
	}

	repo, err := files.New(cfg.SoundPath)
	if err != nil {
		logger.Fatalw("sound directory unavailable", "err", err)
	}

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		logger.Fatalw("failed to create session", "err", err)
	}

	resolver := soundboard.NewResolver(store)
	ingestor := soundboard.NewIngestor(store, repo, fetch.NewYTDLP(logger), fetch.NewFFProbe(), logger)
	manager := playback.NewManager(voice.NewTransport(dg), voice.NewFFmpegSource(logger), store, logger)

	deps := &command.Deps{
		Store:    store,
		Files:    repo,
		Resolver: resolver,
		Ingestor: ingestor,
		Playback: manager,
		Log:      logger,
	}
	bot := discord.NewBot(dg, cfg, deps)

	registerCommands()

	go func() {
		if err := web.NewServer(store, logger).ListenAndServe(cfg.WebAddr); err != nil {
			logger.Errorw("web api stopped", "err", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- bot.Run(ctx)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Infow("received signal, shutting down", "signal", s.String())
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			logger.Errorw("bot error", "err", err)
		}
		cancel()
	}

	logger.Infow("exited cleanly")
}

func registerCommands() {
	command.Register(sound.PlayCommand{}, command.WithGuildOnly(), command.WithSoundplayer(), command.WithCommandLogger())
	command.Register(sound.RandCommand{}, command.WithGuildOnly(), command.WithSoundplayer(), command.WithCommandLogger())
	command.Register(sound.StopCommand{}, command.WithGuildOnly(), command.WithSoundplayer(), command.WithCommandLogger())
	command.Register(sound.ListCommand{}, command.WithGuildOnly(), command.WithSoundplayer(), command.WithCommandLogger())
	command.Register(sound.InfoCommand{}, command.WithGuildOnly(), command.WithSoundplayer(), command.WithCommandLogger())
	command.Register(sound.SearchCommand{}, command.WithGuildOnly(), command.WithSoundplayer(), command.WithCommandLogger())
	command.Register(sound.AddCommand{}, command.WithGuildOnly(), command.WithSoundmaster(), command.WithCommandLogger())
	command.Register(sound.ImportCommand{}, command.WithGuildOnly(), command.WithSoundmaster(), command.WithCommandLogger())
	command.Register(sound.AliasCommand{}, command.WithGuildOnly(), command.WithSoundmaster(), command.WithCommandLogger())
	command.Register(sound.RenameCommand{}, command.WithGuildOnly(), command.WithSoundmaster(), command.WithCommandLogger())
	command.Register(sound.DeleteCommand{}, command.WithGuildOnly(), command.WithSoundmaster(), command.WithCommandLogger())
	command.Register(sound.SettingsCommand{}, command.WithGuildOnly(), command.WithSoundmaster(), command.WithCommandLogger())
	command.Register(sound.HelpCommand{}, command.WithGuildOnly(), command.WithCommandLogger())
}
