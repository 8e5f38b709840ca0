package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"jozvesaz/internal/auth"
	"jozvesaz/internal/config"
	"jozvesaz/internal/store"
	"jozvesaz/internal/store/primary"
	"jozvesaz/internal/transcribe"
)

// App is the explicit dependency container shared by every subcommand.
// Everything in it is constructed exactly once at process start and passed
// by reference; nothing here is a process-wide implicit singleton.
type App struct {
	Config      *config.Config
	UserStore   store.UserStore
	TaskStore   store.TaskStore
	JobClient   store.JobClient
	TokenIssuer *auth.TokenIssuer
	Transcriber transcribe.Transcriber

	primaryStore *primary.StoreImpl
}

func NewApp(cfg *config.Config) (*App, error) {
	ctx := context.Background()
	app := &App{Config: cfg}

	if err := app.initPrimaryStore(ctx); err != nil {
		return nil, err
	}
	if err := app.initJobClient(); err != nil {
		app.cleanupPartialInit()
		return nil, err
	}
	if err := app.initTokenIssuer(); err != nil {
		app.cleanupPartialInit()
		return nil, err
	}
	app.initTranscriber()

	log.Debug("application initialization complete")
	return app, nil
}

func (a *App) initPrimaryStore(ctx context.Context) error {
	ps, err := primary.NewPrimaryStore(ctx, a.Config.Database.DSN)
	if err != nil {
		return fmt.Errorf("init primary store: %w", err)
	}
	a.primaryStore = ps
	a.UserStore = ps
	a.TaskStore = ps
	return nil
}

func (a *App) initJobClient() error {
	jc, err := store.NewAsynqJobClient(
		a.Config.Redis.Address,
		a.Config.Redis.Password,
		a.Config.Redis.DB,
		a.Config.Queue.Name,
	)
	if err != nil {
		return fmt.Errorf("init job client: %w", err)
	}
	a.JobClient = jc
	return nil
}

func (a *App) initTokenIssuer() error {
	issuer, err := auth.NewTokenIssuer(
		a.Config.Auth.SecretKey,
		a.Config.Auth.RefreshSecretKey,
		a.Config.AccessExpiry(),
		a.Config.RefreshExpiry(),
	)
	if err != nil {
		return fmt.Errorf("init token issuer: %w", err)
	}
	a.TokenIssuer = issuer
	return nil
}

func (a *App) initTranscriber() {
	a.Transcriber = transcribe.NewEngine(transcribe.ModelConfig{
		Name:        a.Config.Transcription.ModelName,
		DeviceIndex: a.Config.Transcription.DeviceIndex,
		ComputeType: a.Config.Transcription.ComputeType,
		LoadIn8Bit:  a.Config.Transcription.LoadIn8Bit,
	})
}

func (a *App) cleanupPartialInit() {
	a.Close()
}

// Close releases the app's long-lived resources.
func (a *App) Close() {
	if a.JobClient != nil {
		if err := a.JobClient.Close(); err != nil {
			log.WithError(err).Warn("error closing job client")
		}
	}
	if a.primaryStore != nil {
		a.primaryStore.Close()
	}
}

// Ping verifies database connectivity.
func (a *App) Ping(ctx context.Context) error {
	return a.primaryStore.Ping(ctx)
}
