// Package logging is the structured logging layer of agentdeck.
//
// Components accept the four method Logger interface through their Options
// and default to NoOpLogger. DeckLogger implements it on top of log/slog and
// carries component, session and run attributes. RunFinished, StepFinished
// and ModelCall keep the attribute names of recurring records consistent.
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	ctrl := run.New(func(o *run.Options) { o.Transport = tr; o.Logger = logger })
package logging
