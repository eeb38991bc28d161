package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dasmlab/tmengine/pkg/config"
	"github.com/dasmlab/tmengine/pkg/memory"
	"github.com/dasmlab/tmengine/pkg/store"
	"github.com/dasmlab/tmengine/pkg/translate"
)

// buildEngine opens the store and fallback translator described by cfg. The
// returned close function releases the store.
func buildEngine(cfg *config.Config, logger *logrus.Logger) (*memory.Engine, func() error, error) {
	st, err := store.Open(cfg.Store.Path, store.Options{
		BusyTimeout: time.Duration(cfg.Store.BusyTimeoutMS) * time.Millisecond,
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	translator, err := translate.NewTranslator(cfg.TranslatorConfig(logger))
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("create translator: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("Checking translator health...")
	if err := translator.CheckHealth(ctx); err != nil {
		logger.WithError(err).Warn("Translator health check failed, but continuing anyway")
		logger.Warn("Segments without a stored match will fail until the translator is ready")
	} else {
		logger.Info("Translator health check passed")
	}

	engine, err := memory.New(memory.Options{
		Store:           st,
		Fallback:        translator,
		Policy:          memory.DefaultPolicy(),
		StorageTimeout:  cfg.Store.Timeout,
		Concurrency:     cfg.Memory.Concurrency,
		SerializeWrites: cfg.Memory.SerializeWrites,
		Logger:          logger,
	})
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return engine, st.Close, nil
}
