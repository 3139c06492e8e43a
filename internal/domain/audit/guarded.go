package audit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Guarded makes audit logging best-effort: a failing or panicking sink never
// reaches the caller. Failures are written to stderr instead.
type Guarded struct {
	sink      Sink
	logger    *slog.Logger
	onFailure func(eventType string)
}

func NewGuarded(sink Sink, onFailure func(eventType string)) *Guarded {
	if g, ok := sink.(*Guarded); ok {
		sink = g.sink
	}
	return &Guarded{
		sink:      sink,
		logger:    slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("component", "privacy.audit"),
		onFailure: onFailure,
	}
}

// LogEvent always returns nil.
func (g *Guarded) LogEvent(ctx context.Context, evt Event) (err error) {
	if g == nil || g.sink == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			g.report(evt, fmt.Errorf("audit sink panic: %v", r))
		}
		err = nil
	}()
	if sinkErr := g.sink.LogEvent(ctx, evt); sinkErr != nil {
		g.report(evt, sinkErr)
	}
	return nil
}

func (g *Guarded) report(evt Event, err error) {
	g.logger.Warn("audit event dropped",
		"eventType", evt.EventType,
		"table", evt.TableName,
		"recordId", evt.RecordID,
		"err", err,
	)
	if g.onFailure != nil {
		g.onFailure(evt.EventType)
	}
}
