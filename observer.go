package main

import (
	"github.com/rs/zerolog"
)

// logObserver writes dispatch events as zerolog info lines.
type logObserver struct {
	logger zerolog.Logger
}

func NewLogObserver(logger zerolog.Logger) Observer {
	return &logObserver{logger: logger.With().Str("component", "dispatcher").Logger()}
}

func (o *logObserver) Greeted(id string) {
	o.logger.Info().Str("client_id", id).Msg("granted identifier")
}

func (o *logObserver) Text(id, text string) {
	o.logger.Info().Str("client_id", id).Msgf("user %s says: %s", id, text)
}

func (o *logObserver) Direct(id, destination, text string) {
	o.logger.Info().Str("client_id", id).Str("destination", destination).
		Msgf("user %s sends text message to %s, says: %s", id, destination, text)
}

func (o *logObserver) Broadcast(id, text string) {
	o.logger.Info().Str("client_id", id).Msgf("user %s broadcasts: %s", id, text)
}
